package crypto

import "testing"

func TestSecureWipeZeroesData(t *testing.T) {
	data := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	if err := SecureWipe(data); err != nil {
		t.Fatalf("SecureWipe failed: %v", err)
	}
	for i, b := range data {
		if b != 0 {
			t.Fatalf("byte %d not wiped: got %d", i, b)
		}
	}
}

func TestSecureWipeRejectsNil(t *testing.T) {
	if err := SecureWipe(nil); err == nil {
		t.Fatal("expected error wiping nil data")
	}
}

func TestZeroBytesIgnoresError(t *testing.T) {
	// ZeroBytes must not panic even when there's nothing to wipe.
	ZeroBytes(nil)

	data := []byte{9, 9, 9}
	ZeroBytes(data)
	for i, b := range data {
		if b != 0 {
			t.Fatalf("byte %d not wiped: got %d", i, b)
		}
	}
}
