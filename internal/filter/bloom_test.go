package filter

import (
	"fmt"
	"testing"
)

func TestMayContainNoFalseNegatives(t *testing.T) {
	b := NewBuilder(BitsPerKeyDefault)
	var keys [][]byte
	for i := 0; i < 500; i++ {
		k := []byte(fmt.Sprintf("key-%04d", i))
		keys = append(keys, k)
		b.Add(k)
	}
	encoded := b.Finish()

	r := NewReader(encoded)
	for _, k := range keys {
		if !r.MayContain(k) {
			t.Fatalf("MayContain(%q) = false, want true (no false negatives allowed)", k)
		}
	}
}

func TestMayContainFalsePositiveRateIsReasonable(t *testing.T) {
	b := NewBuilder(BitsPerKeyDefault)
	for i := 0; i < 1000; i++ {
		b.Add([]byte(fmt.Sprintf("present-%04d", i)))
	}
	encoded := b.Finish()
	r := NewReader(encoded)

	falsePositives := 0
	trials := 1000
	for i := 0; i < trials; i++ {
		if r.MayContain([]byte(fmt.Sprintf("absent-%04d", i))) {
			falsePositives++
		}
	}
	// At 10 bits/key the expected FP rate is ~1%; allow generous headroom.
	if falsePositives > trials/5 {
		t.Fatalf("false positive rate too high: %d/%d", falsePositives, trials)
	}
}

func TestEmptyFilterReaderAlwaysMayContain(t *testing.T) {
	r := NewReader(nil)
	if !r.MayContain([]byte("anything")) {
		t.Fatalf("MayContain on an empty/malformed reader = false, want true (fail open)")
	}
}

func TestBuilderResetClearsKeys(t *testing.T) {
	b := NewBuilder(BitsPerKeyDefault)
	b.Add([]byte("a"))
	b.Add([]byte("b"))
	if b.NumKeys() != 2 {
		t.Fatalf("NumKeys = %d, want 2", b.NumKeys())
	}
	b.Reset()
	if b.NumKeys() != 0 {
		t.Fatalf("NumKeys after Reset = %d, want 0", b.NumKeys())
	}
}
