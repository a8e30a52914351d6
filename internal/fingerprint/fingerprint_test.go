package fingerprint

import "testing"

func TestCompute_Deterministic(t *testing.T) {
	t.Parallel()

	left := Compute("Regeringen presenterar ny budget")
	right := Compute("Regeringen presenterar ny budget")
	if left != right {
		t.Fatalf("identical text produced different fingerprints: %s vs %s", left, right)
	}

	other := Compute("Regeringen presenterar ny budget.")
	if left == other {
		t.Fatalf("distinct text produced identical fingerprints: %s", left)
	}
}

func TestFromBytes_RoundTrip(t *testing.T) {
	t.Parallel()

	fp := Compute("hello")
	restored, err := FromBytes(fp.Bytes())
	if err != nil {
		t.Fatalf("round trip failed: %v", err)
	}
	if restored != fp {
		t.Fatalf("round trip mismatch: %s vs %s", restored, fp)
	}
}

func TestFromBytes_InvalidLength(t *testing.T) {
	t.Parallel()

	if _, err := FromBytes([]byte{0x01, 0x02}); err == nil {
		t.Fatalf("expected error for short digest")
	}
}
