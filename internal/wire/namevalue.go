package wire

import (
	"bytes"
	"errors"
)

// ErrParams is returned when a name-value block is malformed or truncated
// (spec.md §4.2 "name-value length decode").
var ErrParams = errors.New("wire: malformed params block")

// ParamMap is the parsed FastCGI parameter set (spec.md §3): a mapping from
// name to value with empty names/values silently dropped and duplicate
// names kept at first occurrence. A plain map gives us first-occurrence
// semantics for free — Insert only writes a key that isn't already present.
type ParamMap map[string]string

// Insert adds name=value unless either is empty or name is already present.
func (m ParamMap) Insert(name, value string) {
	if len(name) == 0 || len(value) == 0 {
		return
	}
	if _, exists := m[name]; exists {
		return
	}
	m[name] = value
}

// DecodeLength reads one length field from the front of s: a single byte
// (high bit clear, value in [0,127]) or four bytes (high bit set on the
// first byte, remaining 31 bits big-endian). Returns the decoded length,
// the number of bytes consumed, and ok=false if s doesn't hold enough
// bytes to decode (spec.md §4.2: "any decode reading past the buffer end
// fails with PARAMS_ERROR").
func DecodeLength(s []byte) (length uint32, n int, ok bool) {
	if len(s) == 0 {
		return 0, 0, false
	}
	b0 := s[0]
	if b0&0x80 == 0 {
		return uint32(b0), 1, true
	}
	if len(s) < 4 {
		return 0, 0, false
	}
	length = uint32(b0&0x7f)<<24 | uint32(s[1])<<16 | uint32(s[2])<<8 | uint32(s[3])
	return length, 4, true
}

// EncodeLength appends the length-encoded form of size to dst and returns
// the extended slice. Sizes < 128 use the one-byte short form; sizes >= 128
// use the four-byte long form with the high bit of the first byte set.
func EncodeLength(dst []byte, size uint32) []byte {
	if size < 128 {
		return append(dst, byte(size))
	}
	return append(dst,
		byte(size>>24)|0x80,
		byte(size>>16),
		byte(size>>8),
		byte(size))
}

// DecodeParams walks buf decoding (name_len, value_len, name, value)
// quartets until exhausted, inserting each into m (spec.md §4.3 "Parameter
// parse"). Returns ErrParams on any length overflow or truncated tail.
func DecodeParams(buf []byte, m ParamMap) error {
	pos := 0
	for pos < len(buf) {
		nameLen, n, ok := DecodeLength(buf[pos:])
		if !ok {
			return ErrParams
		}
		pos += n

		valueLen, n, ok := DecodeLength(buf[pos:])
		if !ok {
			return ErrParams
		}
		pos += n

		nameEnd := pos + int(nameLen)
		valueEnd := nameEnd + int(valueLen)
		if valueEnd < pos || valueEnd > len(buf) {
			return ErrParams
		}

		m.Insert(string(buf[pos:nameEnd]), string(buf[nameEnd:valueEnd]))
		pos = valueEnd
	}
	return nil
}

// EncodePairs renders pairs (in unspecified order, per map iteration) into
// the FastCGI name-value wire form, used by tests to round-trip DecodeParams
// and to build PARAMS/GET_VALUES request bodies.
func EncodePairs(pairs map[string]string) []byte {
	var buf bytes.Buffer
	var lenBuf [4]byte
	for k, v := range pairs {
		buf.Write(EncodeLength(lenBuf[:0], uint32(len(k))))
		buf.Write(EncodeLength(lenBuf[:0], uint32(len(v))))
		buf.WriteString(k)
		buf.WriteString(v)
	}
	return buf.Bytes()
}
