package fastcgi

import (
	"fmt"

	"github.com/gaxiaowei/fastcgisrv/internal/ioutil"
	"github.com/gaxiaowei/fastcgisrv/internal/wire"
)

// WriteTag controls what tail records, if any, write_record appends after
// the payload (spec.md §4.4).
type WriteTag int

const (
	// TagNone appends nothing: the caller plans further writes before
	// closing the request.
	TagNone WriteTag = iota
	// TagClosed appends an empty stream-record terminator (if needed) and
	// no END_REQUEST.
	TagClosed
	// TagFinished appends the stream terminator (if needed) and an
	// END_REQUEST record carrying ctx.AppStatus/ctx.ProtocolStatus.
	TagFinished
)

// Writer owns the single fixed-size staging buffer of spec.md §4.4 ("C4"):
// 65,528 bytes, reused across records and across Handle calls to minimize
// syscalls and allocations.
type Writer struct {
	buf [wire.MaxWriteBuf]byte
}

// NewWriter allocates a Writer. Its backing array is sized once and never
// grows.
func NewWriter() *Writer {
	return &Writer{}
}

// WriteRecord is the writer's single public operation (spec.md §4.4):
// buffer data (optionally preceded by a formatted header rendered in-place)
// into one or more FastCGI records of ctx.WriteType/ctx.RequestID, applying
// tag's tail semantics on the final pass. header/args follow fmt.Sprintf
// conventions; pass an empty header string to skip the prelude.
func (w *Writer) WriteRecord(ctx *Context, tag WriteTag, data []byte, header string, args ...interface{}) (int, error) {
	const bufLen = wire.MaxWriteBuf

	usedLen := wire.HeaderLen
	if header != "" {
		rendered := fmt.Sprintf(header, args...)
		leftLen := bufLen - usedLen
		// Strict `<` per spec.md §9 Open Question 2: a rendered length
		// exactly equal to the remaining space is still overflow.
		if len(rendered) <= 0 || len(rendered) >= leftLen {
			return 0, wrapStatus(StatusWriteError, nil)
		}
		copy(w.buf[usedLen:], rendered)
		usedLen += len(rendered)
	}

	writeTail := tag != TagNone
	total := 0

	for {
		leftLen := bufLen - usedLen
		bodyLen := len(data)
		if bodyLen > leftLen {
			bodyLen = leftLen
		}
		if bodyLen > 0 {
			copy(w.buf[usedLen:], data[:bodyLen])
			data = data[bodyLen:]
			usedLen += bodyLen
		}

		contentLen := usedLen - wire.HeaderLen
		padLen := wire.Align8(contentLen) - contentLen
		h := wire.NewHeader(ctx.WriteType, ctx.RequestID, contentLen)
		h.PaddingLength = uint8(padLen)
		if err := h.Pack(w.buf[:wire.HeaderLen]); err != nil {
			return total, wrapStatus(StatusWriteError, err)
		}
		rawLen := usedLen + padLen

		if writeTail && bufLen > rawLen {
			leftRawLen := bufLen - rawLen
			hasContent := contentLen != 0
			tailLen := 0
			if tag == TagFinished {
				tailLen += wire.HeaderLen + wire.EndRequestBodyLen
			}
			if hasContent {
				tailLen += wire.HeaderLen
			}

			if tailLen <= leftRawLen {
				if hasContent {
					// Avoid writing one more empty-empty pair when the
					// just-emitted record already had zero content.
					th := wire.NewHeader(ctx.WriteType, ctx.RequestID, 0)
					if err := th.Pack(w.buf[rawLen : rawLen+wire.HeaderLen]); err != nil {
						return total, wrapStatus(StatusWriteError, err)
					}
					rawLen += wire.HeaderLen
				}
				if tag == TagFinished {
					eh := wire.NewHeader(wire.TypeEndRequest, ctx.RequestID, wire.EndRequestBodyLen)
					eh.PaddingLength = 0
					if err := eh.Pack(w.buf[rawLen : rawLen+wire.HeaderLen]); err != nil {
						return total, wrapStatus(StatusWriteError, err)
					}
					bodyStart := rawLen + wire.HeaderLen
					if err := wire.PackEndRequestBody(w.buf[bodyStart:bodyStart+wire.EndRequestBodyLen], ctx.AppStatus, ctx.ProtocolStatus); err != nil {
						return total, wrapStatus(StatusWriteError, err)
					}
					rawLen += wire.HeaderLen + wire.EndRequestBodyLen
				}
				writeTail = false
			}
		}

		n, err := ioutil.WriteAll(ctx.fd, w.buf[:rawLen], ctx.deadline)
		if err != nil {
			return total, ioErrToStatus(err, StatusWriteError)
		}
		total += n

		usedLen = wire.HeaderLen

		if len(data) == 0 && !writeTail {
			break
		}
	}

	return total, nil
}

// WriteFinishedRecord is the convenience form applying tag=TagFinished
// (spec.md §4.4).
func (w *Writer) WriteFinishedRecord(ctx *Context, data []byte, header string, args ...interface{}) (int, error) {
	return w.WriteRecord(ctx, TagFinished, data, header, args...)
}
