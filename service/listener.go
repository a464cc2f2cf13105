package service

import (
	"net"
	"sync"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/gaxiaowei/fastcgisrv"
	"github.com/gaxiaowei/fastcgisrv/internal/idpool"
)

// ListenerConfig is the section the container unmarshals into a Listener
// via Init (spec.md §5: "package service implements that caller").
type ListenerConfig struct {
	// Network is "tcp" or "unix".
	Network string `json:"network"`
	// Address is a host:port pair for "tcp" or a socket path for "unix".
	Address string `json:"address"`
	// MaxWorkers bounds concurrently-served connections; <=0 means 1.
	MaxWorkers int `json:"maxWorkers"`
	// Timeout bounds how long any single Handle cycle may block on I/O.
	Timeout time.Duration `json:"timeout"`
}

// Listener accepts connections on Network/Address and drives each one
// through fastcgi.Handle, repeating while the client keeps the connection
// alive. It satisfies Service (Serve/Stop) so it registers into Container
// the same way the teacher's services do.
type Listener struct {
	Handler fastcgi.Handler

	log logrus.FieldLogger
	cfg ListenerConfig

	mu   sync.Mutex
	ln   net.Listener
	pool *idpool.Pool
	wg   sync.WaitGroup
	done chan struct{}
}

// NewListener constructs a Listener bound to h. log may be nil.
func NewListener(h fastcgi.Handler, log logrus.FieldLogger) *Listener {
	return &Listener{Handler: h, log: log}
}

// Init implements the container's reflection-based dependency injection
// (container.initService): its presence and (bool, error) signature are
// what the container looks for via reflect.
func (l *Listener) Init(cfg Config) (bool, error) {
	if cfg == nil {
		return false, errNoConfig
	}

	var c ListenerConfig
	if err := cfg.Unmarshal(&c); err != nil {
		return false, errors.Wrap(err, "listener config")
	}
	if c.Network == "" {
		c.Network = "tcp"
	}
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}

	l.cfg = c
	l.pool = idpool.New(c.MaxWorkers)
	return true, nil
}

// Serve opens the listening socket and accepts connections until Stop is
// called, dispatching each connection to its own goroutine bounded by the
// worker pool (spec.md §5: "concurrency across connections is the
// caller's job").
func (l *Listener) Serve() error {
	ln, err := net.Listen(l.cfg.Network, l.cfg.Address)
	if err != nil {
		return errors.Wrap(err, "listen")
	}

	l.mu.Lock()
	l.ln = ln
	l.done = make(chan struct{})
	l.mu.Unlock()

	if l.log != nil {
		l.log.Debugf("listening on %s/%s", l.cfg.Network, l.cfg.Address)
	}

	for {
		conn, aerr := ln.Accept()
		if aerr != nil {
			select {
			case <-l.done:
				return nil
			default:
			}
			return errors.Wrap(aerr, "accept")
		}

		l.pool.Acquire()
		l.wg.Add(1)
		go l.serveConn(conn)
	}
}

// Stop closes the listening socket and waits for in-flight connections to
// finish their current Handle cycle.
func (l *Listener) Stop() {
	l.mu.Lock()
	if l.done != nil {
		close(l.done)
	}
	ln := l.ln
	l.mu.Unlock()

	if ln != nil {
		ln.Close()
	}
	l.wg.Wait()
}

// serveConn drives fastcgi.Handle over conn's raw descriptor until the peer
// drops the connection or a cycle ends without FCGI_KEEP_CONN set.
func (l *Listener) serveConn(conn net.Conn) {
	defer l.wg.Done()
	defer l.pool.Release()
	defer conn.Close()

	fd, err := rawFd(conn)
	if err != nil {
		if l.log != nil {
			l.log.Errorf("raw fd: %s", err)
		}
		return
	}
	defer syscall.Close(fd)

	ctx := fastcgi.NewContext()
	r := fastcgi.NewReader()
	w := fastcgi.NewWriter()

	for {
		status := fastcgi.Handle(ctx, r, w, fd, l.cfg.Timeout, l.Handler)
		if l.log != nil && fastcgi.Status(status) < 0 {
			l.log.Debugf("request ended: %s", fastcgi.Status(status))
		}
		if !ctx.KeepConn() {
			return
		}
	}
}

// rawFd extracts the underlying file descriptor from a net.Conn. Handle
// operates on raw fds (spec.md §4.1's poll(2)-gated I/O), so the listener
// must step below net.Conn's buffered abstraction for each accepted
// connection.
func rawFd(conn net.Conn) (int, error) {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return 0, errors.New("connection does not expose a raw descriptor")
	}

	rc, err := sc.SyscallConn()
	if err != nil {
		return 0, errors.Wrap(err, "syscall conn")
	}

	var fd int
	var ctrlErr error
	err = rc.Control(func(d uintptr) {
		dupFd, derr := syscall.Dup(int(d))
		if derr != nil {
			ctrlErr = derr
			return
		}
		fd = dupFd
	})
	if err != nil {
		return 0, errors.Wrap(err, "control")
	}
	if ctrlErr != nil {
		return 0, errors.Wrap(ctrlErr, "dup")
	}

	return fd, nil
}
