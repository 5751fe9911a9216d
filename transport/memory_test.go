package transport

import (
	"bytes"
	"context"
	"testing"
)

func TestMemoryTransportPutGet(t *testing.T) {
	m := NewMemoryTransport()
	var idx Index
	idx[0] = 0xAB

	if err := m.Put(context.Background(), idx, []byte("hello")); err != nil {
		t.Fatalf("Put() error: %v", err)
	}
	got, err := m.Get(context.Background(), idx)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if !bytes.Equal(got, []byte("hello")) {
		t.Errorf("Get() = %q, want %q", got, "hello")
	}
}

func TestMemoryTransportGetMissing(t *testing.T) {
	m := NewMemoryTransport()
	var idx Index
	if _, err := m.Get(context.Background(), idx); err != ErrNotFound {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestMemoryTransportGetManyMixedPresence(t *testing.T) {
	m := NewMemoryTransport()
	var idx1, idx2 Index
	idx1[0] = 1
	idx2[0] = 2
	m.Put(context.Background(), idx1, []byte("one"))

	results, err := m.GetMany(context.Background(), []Index{idx1, idx2})
	if err != nil {
		t.Fatalf("GetMany() error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("GetMany() len = %d, want 2", len(results))
	}
	if !results[0].Present || !bytes.Equal(results[0].Blob, []byte("one")) {
		t.Errorf("GetMany()[0] = %+v, want present 'one'", results[0])
	}
	if results[1].Present {
		t.Errorf("GetMany()[1] = %+v, want absent", results[1])
	}
}

func TestMemoryTransportPutIsolatesCallerSlice(t *testing.T) {
	m := NewMemoryTransport()
	var idx Index
	blob := []byte("mutate-me")
	m.Put(context.Background(), idx, blob)
	blob[0] = 'X'

	got, err := m.Get(context.Background(), idx)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got[0] == 'X' {
		t.Error("Put() did not copy the input blob; later mutation leaked through")
	}
}
