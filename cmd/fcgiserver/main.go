package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/gaxiaowei/fastcgisrv"
	"github.com/gaxiaowei/fastcgisrv/service"
)

// echoHandler is a minimal Responder: it writes the request's parsed PARAMS
// back as the response body, one "name=value" line each, wired up the way
// the teacher's main.go wired its (broken) debug HTTP handler.
type echoHandler struct {
	fastcgi.BaseHandler
}

func (echoHandler) OnResponse(ctx *fastcgi.Context, r *fastcgi.Reader, w *fastcgi.Writer) int32 {
	if _, err := w.WriteRecord(ctx, fastcgi.TagNone, nil, "Content-Type: text/plain\r\n\r\n"); err != nil {
		return int32(fastcgi.StatusWriteError)
	}

	for name, value := range r.Params() {
		line := fmt.Sprintf("%s=%s\n", name, value)
		if _, err := w.WriteRecord(ctx, fastcgi.TagNone, []byte(line), ""); err != nil {
			return int32(fastcgi.StatusWriteError)
		}
	}

	if _, err := w.WriteFinishedRecord(ctx, nil, ""); err != nil {
		return int32(fastcgi.StatusWriteError)
	}
	return int32(fastcgi.StatusOK)
}

func main() {
	cfgPath := flag.String("config", "fcgiserver.json", "path to JSON configuration")
	flag.Parse()

	log := logrus.New()

	cfg, err := service.LoadConfig(*cfgPath)
	if err != nil {
		log.Fatalf("config: %s", err)
	}

	container := service.NewContainer(log)
	container.Register("listener", service.NewListener(echoHandler{}, log))

	if err := container.Init(cfg); err != nil {
		log.Fatalf("init: %s", err)
	}

	if err := container.Serve(); err != nil {
		log.Errorf("serve: %s", err)
		os.Exit(1)
	}
}
