package block

import "testing"

func TestFooterEncodeDecodeRoundTrip(t *testing.T) {
	f := Footer{FilterOffset: 10, FilterSize: 20, IndexOffset: 30, IndexSize: 40}
	encoded := f.Encode()
	if len(encoded) != FooterSize {
		t.Fatalf("Encode produced %d bytes, want %d", len(encoded), FooterSize)
	}

	decoded, err := DecodeFooter(encoded)
	if err != nil {
		t.Fatalf("DecodeFooter: %v", err)
	}
	if decoded != f {
		t.Fatalf("DecodeFooter = %+v, want %+v", decoded, f)
	}
}

func TestDecodeFooterUsesTrailingBytes(t *testing.T) {
	f := Footer{FilterOffset: 1, FilterSize: 2, IndexOffset: 3, IndexSize: 4}
	padded := append([]byte("ignored-prefix"), f.Encode()...)

	decoded, err := DecodeFooter(padded)
	if err != nil {
		t.Fatalf("DecodeFooter: %v", err)
	}
	if decoded != f {
		t.Fatalf("DecodeFooter = %+v, want %+v", decoded, f)
	}
}

func TestDecodeFooterTooShort(t *testing.T) {
	if _, err := DecodeFooter([]byte("short")); err == nil {
		t.Fatalf("DecodeFooter on short input returned nil error")
	}
}

func TestHandleEncodeDecodeRoundTrip(t *testing.T) {
	h := Handle{Offset: 1234, Size: 5678}
	encoded := h.AppendTo(nil)

	decoded, err := DecodeHandle(encoded)
	if err != nil {
		t.Fatalf("DecodeHandle: %v", err)
	}
	if decoded != h {
		t.Fatalf("DecodeHandle = %+v, want %+v", decoded, h)
	}
}

func TestDecodeHandleTruncated(t *testing.T) {
	if _, err := DecodeHandle([]byte{1, 2, 3}); err == nil {
		t.Fatalf("DecodeHandle on truncated input returned nil error")
	}
}
