package fastcgi

import (
	"github.com/gaxiaowei/fastcgisrv/internal/ioutil"
	"github.com/gaxiaowei/fastcgisrv/internal/wire"
)

// Reader owns the growable payload buffers and parsed parameter map of
// spec.md §4.3 ("C3"): params-raw, stdin, data, and the result ParamMap.
type Reader struct {
	paramsRaw []byte
	stdinBuf  []byte
	dataBuf   []byte
	params    wire.ParamMap

	headerBuf [wire.HeaderLen]byte
}

// NewReader allocates a Reader with its buffers empty; capacity grows on
// demand and is retained across Handle calls for reuse.
func NewReader() *Reader {
	return &Reader{params: make(wire.ParamMap)}
}

// Params returns the most recently parsed parameter map.
func (r *Reader) Params() wire.ParamMap { return r.params }

// Stdin returns the most recently accumulated STDIN stream bytes.
func (r *Reader) Stdin() []byte { return r.stdinBuf }

// Data returns the most recently accumulated DATA stream bytes.
func (r *Reader) Data() []byte { return r.dataBuf }

// readHeader reads one 8-byte header from ctx's descriptor into ctx.header,
// failing with StatusUnsupportedVersion if the version byte isn't 1.
func (r *Reader) readHeader(ctx *Context) error {
	n, err := ioutil.ReadFull(ctx.fd, r.headerBuf[:], ctx.deadline)
	if err != nil {
		return ioErrToStatus(err, StatusReadError)
	}
	h, uerr := wire.UnpackHeader(r.headerBuf[:n])
	if uerr != nil {
		ctx.header = h
		return wrapStatus(StatusUnsupportedVersion, uerr)
	}
	ctx.header = h
	return nil
}

// ReadRecordBody reads the body (content+padding) belonging to the header
// already staged in ctx.header, appending content bytes into the params-raw
// buffer (spec.md §4.3: "used to drain records for ignored request ids").
// Returns bytes of content read, or a negative-status error.
func (r *Reader) ReadRecordBody(ctx *Context) (int, error) {
	r.paramsRaw = r.paramsRaw[:0]
	n, err := r.readBodyInto(ctx, &r.paramsRaw)
	if err != nil {
		return 0, err
	}
	return n, nil
}

// readBodyInto reads ctx.header's content+padding into *buf (growing it),
// truncates the padding back off, and returns the content length.
func (r *Reader) readBodyInto(ctx *Context, buf *[]byte) (int, error) {
	contentLen := int(ctx.header.ContentLength)
	padLen := int(ctx.header.PaddingLength)
	total := contentLen + padLen
	if total == 0 {
		return 0, nil
	}

	start := len(*buf)
	*buf = append(*buf, make([]byte, total)...)
	_, err := ioutil.ReadFull(ctx.fd, (*buf)[start:start+total], ctx.deadline)
	if err != nil {
		*buf = (*buf)[:start]
		return 0, ioErrToStatus(err, StatusReadError)
	}
	// Drop the padding: keep only the content bytes.
	*buf = (*buf)[:start+contentLen]
	return contentLen, nil
}

// readStreamUntilEmpty implements the record-sequence loop shared by
// ReadParams/ReadStdin/ReadData (spec.md §4.3 "Record-sequence loop"):
// repeatedly read a header, validate it against expected and BEGIN_REQUEST
// against multiplex, accumulate content into buf, until a zero-length
// record ends the stream. An underlying EOF does not end the stream
// cleanly: readHeader reports it as StatusReadError.
func (r *Reader) readStreamUntilEmpty(ctx *Context, expected wire.RecType, buf *[]byte) (int, error) {
	total := 0
	for {
		if err := r.readHeader(ctx); err != nil {
			return total, err
		}

		if ctx.header.Type == wire.TypeBeginRequest {
			return total, wrapStatus(StatusUnsupportedMpxConn, nil)
		}
		if ctx.header.Type != expected {
			return total, wrapStatus(StatusHeaderTypeError, nil)
		}
		if ctx.header.RequestID != ctx.RequestID {
			return total, wrapStatus(StatusRequestIDMismatch, nil)
		}

		n, err := r.readBodyInto(ctx, buf)
		if err != nil {
			return total, err
		}
		total += n

		if ctx.header.ContentLength == 0 {
			return total, nil
		}
	}
}

// ReadParams reads the PARAMS stream (spec.md §4.3) until the terminating
// zero-length record, then parses the accumulated bytes into the parameter
// map. Returns total content bytes read.
func (r *Reader) ReadParams(ctx *Context) (int, error) {
	r.paramsRaw = r.paramsRaw[:0]
	for k := range r.params {
		delete(r.params, k)
	}

	n, err := r.readStreamUntilEmpty(ctx, wire.TypeParams, &r.paramsRaw)
	if err != nil {
		return n, err
	}
	if n > 0 {
		if perr := wire.DecodeParams(r.paramsRaw, r.params); perr != nil {
			return n, wrapStatus(StatusParamsError, perr)
		}
	}
	return n, nil
}

// ReadStdin reads the STDIN stream into the stdin buffer (spec.md §4.3).
func (r *Reader) ReadStdin(ctx *Context) (int, error) {
	r.stdinBuf = r.stdinBuf[:0]
	return r.readStreamUntilEmpty(ctx, wire.TypeStdin, &r.stdinBuf)
}

// ReadData reads the DATA stream into the data buffer (spec.md §4.3).
func (r *Reader) ReadData(ctx *Context) (int, error) {
	r.dataBuf = r.dataBuf[:0]
	return r.readStreamUntilEmpty(ctx, wire.TypeData, &r.dataBuf)
}

// ReadRecordParams reads a single PARAMS body (ctx.header already set) and
// parses it — used for management FCGI_GET_VALUES (spec.md §4.3).
func (r *Reader) ReadRecordParams(ctx *Context) (int, error) {
	r.paramsRaw = r.paramsRaw[:0]
	for k := range r.params {
		delete(r.params, k)
	}

	n, err := r.readBodyInto(ctx, &r.paramsRaw)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		if perr := wire.DecodeParams(r.paramsRaw, r.params); perr != nil {
			return n, wrapStatus(StatusParamsError, perr)
		}
	}
	return n, nil
}

// ioErrToStatus classifies an ioutil error into the matching fastcgi
// Status, preserving the cause for diagnostics.
func ioErrToStatus(err error, fallback Status) error {
	if err == ioutil.ErrTimeout {
		return wrapStatus(StatusTimeout, err)
	}
	return wrapStatus(fallback, err)
}
