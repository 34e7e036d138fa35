package compression

import (
	"bytes"
	"testing"
)

func TestCompressDecompressRoundTrip(t *testing.T) {
	data := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog. "), 50)

	for _, typ := range []Type{NoCompression, SnappyCompression, LZ4Compression, ZstdCompression} {
		compressed, err := Compress(typ, data)
		if err != nil {
			t.Fatalf("Compress(%s): %v", typ, err)
		}
		decompressed, err := DecompressWithSize(typ, compressed, len(data))
		if err != nil {
			t.Fatalf("Decompress(%s): %v", typ, err)
		}
		if !bytes.Equal(decompressed, data) {
			t.Fatalf("Decompress(%s) round trip mismatch", typ)
		}
	}
}

func TestNoCompressionIsIdentity(t *testing.T) {
	data := []byte("unchanged")
	compressed, err := Compress(NoCompression, data)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	if !bytes.Equal(compressed, data) {
		t.Fatalf("Compress(NoCompression) = %q, want %q", compressed, data)
	}
}

func TestUnsupportedTypeErrors(t *testing.T) {
	if _, err := Compress(Type(0xFF), []byte("x")); err == nil {
		t.Fatalf("Compress with unsupported type returned nil error")
	}
	if _, err := Decompress(Type(0xFF), []byte("x")); err == nil {
		t.Fatalf("Decompress with unsupported type returned nil error")
	}
}

func TestIsSupported(t *testing.T) {
	for _, typ := range []Type{NoCompression, SnappyCompression, LZ4Compression, ZstdCompression} {
		if !typ.IsSupported() {
			t.Fatalf("IsSupported(%s) = false, want true", typ)
		}
	}
	if Type(0xFF).IsSupported() {
		t.Fatalf("IsSupported(0xFF) = true, want false")
	}
}
