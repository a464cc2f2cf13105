package fastcgi

import (
	"time"

	"github.com/gaxiaowei/fastcgisrv/internal/ioutil"
	"github.com/gaxiaowei/fastcgisrv/internal/wire"
)

// Handler is the capability set an application supplies (spec.md §4.5,
// §9 "Polymorphism over the handler"): one required method and four
// defaulted ones, dispatched through Handle's single table rather than a
// class hierarchy. Embed BaseHandler and implement OnResponse to satisfy
// Handler with the spec's stock defaults for the rest.
type Handler interface {
	// OnResponse is invoked for the Responder role once STDIN has been
	// fully read. Required.
	OnResponse(ctx *Context, r *Reader, w *Writer) int32

	// OnAuth is invoked for the Authorizer role. Default: reply
	// UNSUPPORTED_AUTH via a FINISHED record.
	OnAuth(ctx *Context, r *Reader, w *Writer) int32

	// OnFilter is invoked for the Filter role once STDIN and DATA have
	// been fully read. Default: reply UNSUPPORTED_FILTER via a FINISHED
	// record.
	OnFilter(ctx *Context, r *Reader, w *Writer) int32

	// OnManagement is invoked for FCGI_GET_VALUES (request id 0).
	// Default: the GET_VALUES responder of spec.md §4.5.
	OnManagement(ctx *Context, r *Reader, w *Writer) int32

	// OnMultiConnect is invoked after the loop terminates with
	// StatusUnsupportedMpxConn, converting the internal protocol
	// violation into a well-formed wire rejection. Default: set
	// ProtocolStatus to CantMultiplex and write a FINISHED record.
	OnMultiConnect(ctx *Context, r *Reader, w *Writer) int32
}

// BaseHandler supplies the four defaulted Handler methods. Embed it in an
// application type and implement only OnResponse.
type BaseHandler struct{}

func (BaseHandler) OnAuth(ctx *Context, r *Reader, w *Writer) int32 {
	ctx.AppStatus = int32(StatusUnsupportedAuth)
	n, err := w.WriteFinishedRecord(ctx, nil, "")
	if err != nil {
		return int32(statusOf(err))
	}
	return int32(n)
}

func (BaseHandler) OnFilter(ctx *Context, r *Reader, w *Writer) int32 {
	ctx.AppStatus = int32(StatusUnsupportedFilter)
	n, err := w.WriteFinishedRecord(ctx, nil, "")
	if err != nil {
		return int32(statusOf(err))
	}
	return int32(n)
}

func (BaseHandler) OnMultiConnect(ctx *Context, r *Reader, w *Writer) int32 {
	ctx.ProtocolStatus = ProtoCantMultiplex
	n, err := w.WriteFinishedRecord(ctx, nil, "")
	if err != nil {
		return int32(statusOf(err))
	}
	return int32(n)
}

// OnManagement implements the default FCGI_GET_VALUES responder of
// spec.md §4.5: read the PARAMS body, and for each recognized variable name
// emit a name=value pair using the short length encoding.
func (BaseHandler) OnManagement(ctx *Context, r *Reader, w *Writer) int32 {
	n, err := r.ReadRecordParams(ctx)
	if err != nil {
		return int32(statusOf(err))
	}
	if n <= 0 {
		return int32(n)
	}

	var body []byte
	for name := range r.Params() {
		var value byte
		switch name {
		case wire.KeyMaxConns:
			value = '1'
		case wire.KeyMaxReqs:
			value = '1'
		case wire.KeyMpxsConns:
			value = '0'
		default:
			continue
		}
		body = wire.EncodeLength(body, uint32(len(name)))
		body = wire.EncodeLength(body, 1)
		body = append(body, name...)
		body = append(body, value)
	}

	ctx.WriteType = wire.TypeGetValuesResult
	written, werr := w.WriteFinishedRecord(ctx, body, "")
	if werr != nil {
		return int32(statusOf(werr))
	}
	return int32(written)
}

// statusOf extracts the Status carried by err, defaulting to StatusError.
func statusOf(err error) Status {
	if fe, ok := err.(*Error); ok {
		return fe.Status
	}
	return StatusError
}

// Handle drives one FastCGI request cycle to completion against fd,
// failing any pending I/O once the absolute deadline (now+timeout) passes
// (spec.md §4.5). ctx, r, and w may be reused across many calls on
// different descriptors; Handle resets ctx at entry.
func Handle(ctx *Context, r *Reader, w *Writer, fd int, timeout time.Duration, h Handler) int32 {
	ctx.Reset(fd, timeout)

loop:
	for {
		if err := r.readHeader(ctx); err != nil {
			ctx.AppStatus = int32(statusOf(err))
			break
		}
		ctx.RequestID = ctx.header.RequestID

		switch {
		case ctx.header.Type == wire.TypeBeginRequest:
			if ctx.RequestID == wire.NullRequestID {
				ctx.AppStatus = int32(StatusRequestIDError)
				break loop
			}

			role, flags, err := readBeginRequestBody(ctx)
			if err != nil {
				ctx.AppStatus = int32(statusOf(err))
				break loop
			}
			ctx.Role = role
			ctx.Flags = flags

			if _, err := r.ReadParams(ctx); err != nil {
				ctx.AppStatus = int32(statusOf(err))
				break loop
			}

			switch ctx.Role {
			case RoleResponder:
				if n, err := r.ReadStdin(ctx); err != nil {
					ctx.AppStatus = int32(statusOf(err))
				} else if n >= 0 {
					ctx.AppStatus = h.OnResponse(ctx, r, w)
				}

			case RoleAuthorizer:
				ctx.AppStatus = h.OnAuth(ctx, r, w)

			case RoleFilter:
				if n, err := r.ReadStdin(ctx); err != nil {
					ctx.AppStatus = int32(statusOf(err))
				} else if n >= 0 {
					if n2, err2 := r.ReadData(ctx); err2 != nil {
						ctx.AppStatus = int32(statusOf(err2))
					} else if n2 >= 0 {
						ctx.AppStatus = h.OnFilter(ctx, r, w)
					}
				}

			default:
				ctx.ProtocolStatus = ProtoUnknownRole
				n, werr := w.WriteFinishedRecord(ctx, nil, "")
				if werr != nil {
					ctx.AppStatus = int32(statusOf(werr))
				} else {
					ctx.AppStatus = int32(n)
				}
			}
			break loop

		case ctx.RequestID == wire.NullRequestID:
			if ctx.header.Type == wire.TypeGetValues {
				ctx.AppStatus = h.OnManagement(ctx, r, w)
			} else {
				ctx.WriteType = wire.TypeUnknownType
				var body [wire.UnknownTypeBodyLen]byte
				_ = wire.PackUnknownTypeBody(body[:], uint8(ctx.header.Type))
				n, werr := w.WriteFinishedRecord(ctx, body[:], "")
				if werr != nil {
					ctx.AppStatus = int32(statusOf(werr))
				} else {
					ctx.AppStatus = int32(n)
				}
			}
			break loop

		default:
			// Ignored in-flight id (stray multiplexed request): drain and
			// continue the top-level loop.
			if _, err := r.ReadRecordBody(ctx); err != nil {
				ctx.AppStatus = int32(statusOf(err))
				break loop
			}
		}
	}

	if Status(ctx.AppStatus) == StatusUnsupportedMpxConn {
		ctx.AppStatus = h.OnMultiConnect(ctx, r, w)
	}

	return ctx.AppStatus
}

// readBeginRequestBody reads the fixed 8-byte BEGIN_REQUEST body following
// the header already staged in ctx.header.
func readBeginRequestBody(ctx *Context) (Role, uint8, error) {
	var raw [wire.BeginRequestBodyLen]byte
	if _, err := ioutil.ReadFull(ctx.fd, raw[:], ctx.deadline); err != nil {
		return 0, 0, ioErrToStatus(err, StatusReadError)
	}
	role, flags, err := wire.UnpackBeginRequestBody(raw[:])
	if err != nil {
		return 0, 0, wrapStatus(StatusProtocolError, err)
	}
	return role, flags, nil
}
