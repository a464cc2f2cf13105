package wire

import "fmt"

// HeaderLen is the fixed size of a FastCGI record header on the wire.
const HeaderLen = 8

// Header is the 8-byte FastCGI record header, spec.md §3.
type Header struct {
	Version       uint8
	Type          RecType
	RequestID     uint16
	ContentLength uint16
	PaddingLength uint8
}

// Pack renders h into the 8-byte wire form, asserting the invariants of
// spec.md §4.2 (content length <= 65535, padding length <= 255).
func (h Header) Pack(dst []byte) error {
	if len(dst) < HeaderLen {
		return fmt.Errorf("wire: header buffer too small: %d", len(dst))
	}
	if h.ContentLength > MaxContentLength {
		return fmt.Errorf("wire: content length %d exceeds %d", h.ContentLength, MaxContentLength)
	}
	dst[0] = Version1
	dst[1] = byte(h.Type)
	dst[2] = byte(h.RequestID >> 8)
	dst[3] = byte(h.RequestID)
	dst[4] = byte(h.ContentLength >> 8)
	dst[5] = byte(h.ContentLength)
	dst[6] = h.PaddingLength
	dst[7] = 0 // reserved
	return nil
}

// NewHeader builds a Header for a record of contentLen bytes, computing the
// padding needed to round (content+padding) to a multiple of 8.
func NewHeader(t RecType, reqID uint16, contentLen int) Header {
	return Header{
		Version:       Version1,
		Type:          t,
		RequestID:     reqID,
		ContentLength: uint16(contentLen),
		PaddingLength: uint8(Align8(contentLen) - contentLen),
	}
}

// ErrUnsupportedVersion is returned by UnpackHeader when the wire version
// is not 1.
type ErrUnsupportedVersion struct{ Got uint8 }

func (e *ErrUnsupportedVersion) Error() string {
	return fmt.Sprintf("wire: unsupported version %d", e.Got)
}

// UnpackHeader parses an 8-byte raw header per spec.md §4.2 ("header
// unpack"). Fields are big-endian, upper byte first.
func UnpackHeader(src []byte) (Header, error) {
	if len(src) < HeaderLen {
		return Header{}, fmt.Errorf("wire: short header: %d bytes", len(src))
	}
	h := Header{
		Version:       src[0],
		Type:          RecType(src[1]),
		RequestID:     uint16(src[2])<<8 | uint16(src[3]),
		ContentLength: uint16(src[4])<<8 | uint16(src[5]),
		PaddingLength: src[6],
	}
	if h.Version != Version1 {
		return h, &ErrUnsupportedVersion{Got: h.Version}
	}
	return h, nil
}

// BeginRequestBodyLen is the fixed size of an FCGI_BEGIN_REQUEST body.
const BeginRequestBodyLen = 8

// UnpackBeginRequestBody decodes the 8-byte BEGIN_REQUEST body (spec.md
// §4.2): two-byte big-endian role, one-byte flags, five reserved bytes.
func UnpackBeginRequestBody(src []byte) (role Role, flags uint8, err error) {
	if len(src) < BeginRequestBodyLen {
		return 0, 0, fmt.Errorf("wire: short begin-request body: %d bytes", len(src))
	}
	role = Role(uint16(src[0])<<8 | uint16(src[1]))
	flags = src[2]
	return role, flags, nil
}

// EndRequestBodyLen is the fixed size of an FCGI_END_REQUEST body.
const EndRequestBodyLen = 8

// PackEndRequestBody renders the 8-byte END_REQUEST body (spec.md §4.2):
// four-byte big-endian application status, one-byte protocol status,
// three reserved zero bytes.
func PackEndRequestBody(dst []byte, appStatus int32, protoStatus ProtocolStatus) error {
	if len(dst) < EndRequestBodyLen {
		return fmt.Errorf("wire: end-request buffer too small: %d", len(dst))
	}
	dst[0] = byte(appStatus >> 24)
	dst[1] = byte(appStatus >> 16)
	dst[2] = byte(appStatus >> 8)
	dst[3] = byte(appStatus)
	dst[4] = byte(protoStatus)
	dst[5], dst[6], dst[7] = 0, 0, 0
	return nil
}

// UnknownTypeBodyLen is the fixed size of an FCGI_UNKNOWN_TYPE body.
const UnknownTypeBodyLen = 8

// PackUnknownTypeBody renders the 8-byte UNKNOWN_TYPE body: one-byte type,
// seven reserved zero bytes.
func PackUnknownTypeBody(dst []byte, recvType uint8) error {
	if len(dst) < UnknownTypeBodyLen {
		return fmt.Errorf("wire: unknown-type buffer too small: %d", len(dst))
	}
	dst[0] = recvType
	for i := 1; i < UnknownTypeBodyLen; i++ {
		dst[i] = 0
	}
	return nil
}
