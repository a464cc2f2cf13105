package wire

import "testing"

func TestEncodeDecodeLengthSymmetry(t *testing.T) {
	sizes := []uint32{0, 1, 127, 128, 255, 256, 1 << 20, 1<<31 - 1}
	for _, size := range sizes {
		enc := EncodeLength(nil, size)
		got, n, ok := DecodeLength(enc)
		if !ok {
			t.Fatalf("size=%d: DecodeLength reported !ok", size)
		}
		if n != len(enc) {
			t.Fatalf("size=%d: consumed %d bytes, encoded %d", size, n, len(enc))
		}
		if got != size {
			t.Fatalf("size=%d: got %d", size, got)
		}
	}
}

func TestEncodeLengthFormBoundary(t *testing.T) {
	if n := len(EncodeLength(nil, 127)); n != 1 {
		t.Errorf("127 should use short form, got %d bytes", n)
	}
	if n := len(EncodeLength(nil, 128)); n != 4 {
		t.Errorf("128 should use long form, got %d bytes", n)
	}
}

func TestDecodeLengthTruncated(t *testing.T) {
	if _, _, ok := DecodeLength(nil); ok {
		t.Fatal("empty input should fail to decode")
	}
	// High bit set but fewer than 4 bytes available.
	if _, _, ok := DecodeLength([]byte{0x80, 0x01}); ok {
		t.Fatal("truncated long form should fail to decode")
	}
}

func TestDecodeParamsRoundTrip(t *testing.T) {
	pairs := map[string]string{
		"REQUEST_METHOD": "GET",
		"SCRIPT_NAME":    "/index.php",
		"QUERY_STRING":   "",
	}
	encoded := EncodePairs(pairs)

	got := make(ParamMap)
	if err := DecodeParams(encoded, got); err != nil {
		t.Fatalf("DecodeParams: %v", err)
	}

	// Empty-valued pairs are dropped (spec.md §9 Open Question 1).
	if _, ok := got["QUERY_STRING"]; ok {
		t.Error("empty-value pair QUERY_STRING should have been dropped")
	}
	if got["REQUEST_METHOD"] != "GET" {
		t.Errorf("REQUEST_METHOD = %q, want GET", got["REQUEST_METHOD"])
	}
	if got["SCRIPT_NAME"] != "/index.php" {
		t.Errorf("SCRIPT_NAME = %q, want /index.php", got["SCRIPT_NAME"])
	}
}

func TestDecodeParamsLongForm(t *testing.T) {
	name := make([]byte, 200)
	for i := range name {
		name[i] = 'a'
	}
	value := "v"

	var buf []byte
	buf = EncodeLength(buf, uint32(len(name)))
	buf = EncodeLength(buf, uint32(len(value)))
	buf = append(buf, name...)
	buf = append(buf, value...)

	m := make(ParamMap)
	if err := DecodeParams(buf, m); err != nil {
		t.Fatalf("DecodeParams: %v", err)
	}
	if m[string(name)] != value {
		t.Fatalf("long-form name not decoded correctly")
	}
}

func TestDecodeParamsTruncatedTail(t *testing.T) {
	// name_len=5, value_len=5, but only 3 bytes of payload follow.
	buf := []byte{5, 5, 'a', 'b', 'c'}
	m := make(ParamMap)
	if err := DecodeParams(buf, m); err != ErrParams {
		t.Fatalf("DecodeParams = %v, want ErrParams", err)
	}
}

func TestDecodeParamsEmptyBuffer(t *testing.T) {
	m := make(ParamMap)
	if err := DecodeParams(nil, m); err != nil {
		t.Fatalf("DecodeParams(nil) = %v, want nil", err)
	}
	if len(m) != 0 {
		t.Fatalf("expected no params, got %v", m)
	}
}

func TestParamMapInsertFirstOccurrenceWins(t *testing.T) {
	m := make(ParamMap)
	m.Insert("NAME", "first")
	m.Insert("NAME", "second")
	if m["NAME"] != "first" {
		t.Fatalf("NAME = %q, want first occurrence kept", m["NAME"])
	}
}

func TestParamMapInsertDropsEmpty(t *testing.T) {
	m := make(ParamMap)
	m.Insert("", "value")
	m.Insert("NAME", "")
	if len(m) != 0 {
		t.Fatalf("expected both inserts dropped, got %v", m)
	}
}
