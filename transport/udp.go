package transport

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"
)

// UDPTransport is a Transport backed by a UDP key/value relay: it sends
// length-prefixed request frames to a fixed relay address and correlates
// responses by a per-call request id. Adapted from the teacher's
// UDPTransport (context-based lifecycle, a goroutine reading the socket
// and dispatching by a registered key, RWMutex-guarded bookkeeping),
// narrowed from arbitrary packet-type handlers to three fixed verbs
// (put/get/get_many) with one pending-request map instead of a handler
// registry.
type UDPTransport struct {
	conn   net.PacketConn
	relay  net.Addr
	mu     sync.Mutex
	nextID uint64
	// pending maps request id -> channel the reader goroutine delivers
	// the matching response frame to.
	pending map[uint64]chan []byte
	ctx     context.Context
	cancel  context.CancelFunc
}

const (
	verbPut byte = iota + 1
	verbGet
	verbGetMany
	verbResponse
)

// NewUDPTransport dials relayAddr and starts the response-reading loop.
func NewUDPTransport(relayAddr string) (*UDPTransport, error) {
	conn, err := net.ListenPacket("udp", ":0")
	if err != nil {
		return nil, fmt.Errorf("transport: listen udp: %w", err)
	}
	addr, err := net.ResolveUDPAddr("udp", relayAddr)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("transport: resolve relay address: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &UDPTransport{
		conn:    conn,
		relay:   addr,
		pending: make(map[uint64]chan []byte),
		ctx:     ctx,
		cancel:  cancel,
	}
	go t.readLoop()
	return t, nil
}

// Close stops the reader goroutine and releases the socket.
func (t *UDPTransport) Close() error {
	t.cancel()
	return t.conn.Close()
}

func (t *UDPTransport) readLoop() {
	buf := make([]byte, 64*1024)
	for {
		select {
		case <-t.ctx.Done():
			return
		default:
		}
		n, _, err := t.conn.ReadFrom(buf)
		if err != nil {
			if t.ctx.Err() != nil {
				return
			}
			continue
		}
		t.dispatch(buf[:n])
	}
}

func (t *UDPTransport) dispatch(frame []byte) {
	if len(frame) < 9 || frame[0] != verbResponse {
		return
	}
	id := binary.BigEndian.Uint64(frame[1:9])
	payload := frame[9:]

	t.mu.Lock()
	ch, ok := t.pending[id]
	t.mu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- payload:
	default:
	}
}

func (t *UDPTransport) roundTrip(ctx context.Context, verb byte, body []byte) ([]byte, error) {
	t.mu.Lock()
	id := t.nextID
	t.nextID++
	respCh := make(chan []byte, 1)
	t.pending[id] = respCh
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		delete(t.pending, id)
		t.mu.Unlock()
	}()

	frame := make([]byte, 0, 9+len(body))
	frame = append(frame, verb)
	var idBuf [8]byte
	binary.BigEndian.PutUint64(idBuf[:], id)
	frame = append(frame, idBuf[:]...)
	frame = append(frame, body...)

	if _, err := t.conn.WriteTo(frame, t.relay); err != nil {
		return nil, fmt.Errorf("transport: write to relay: %w", err)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case resp := <-respCh:
		return resp, nil
	case <-time.After(30 * time.Second):
		return nil, errors.New("transport: relay request timed out")
	}
}

// Put sends a put request for index/blob to the relay.
func (t *UDPTransport) Put(ctx context.Context, index Index, blob []byte) error {
	body := make([]byte, 0, 32+len(blob))
	body = append(body, index[:]...)
	body = append(body, blob...)
	_, err := t.roundTrip(ctx, verbPut, body)
	return err
}

// Get requests the blob at index from the relay.
func (t *UDPTransport) Get(ctx context.Context, index Index) ([]byte, error) {
	resp, err := t.roundTrip(ctx, verbGet, index[:])
	if err != nil {
		return nil, err
	}
	if len(resp) == 0 {
		return nil, ErrNotFound
	}
	return resp, nil
}

// GetMany requests every index in one relay round trip: a
// presence-byte followed by a length-prefixed blob per entry, in order.
func (t *UDPTransport) GetMany(ctx context.Context, indices []Index) ([]Option, error) {
	body := make([]byte, 0, len(indices)*32)
	for _, idx := range indices {
		body = append(body, idx[:]...)
	}
	resp, err := t.roundTrip(ctx, verbGetMany, body)
	if err != nil {
		return nil, err
	}

	out := make([]Option, 0, len(indices))
	for len(resp) > 0 {
		if resp[0] == 0 {
			out = append(out, Option{})
			resp = resp[1:]
			continue
		}
		if len(resp) < 5 {
			return nil, errors.New("transport: malformed get_many response")
		}
		n := binary.BigEndian.Uint32(resp[1:5])
		resp = resp[5:]
		if uint64(len(resp)) < uint64(n) {
			return nil, errors.New("transport: malformed get_many response")
		}
		out = append(out, Option{Blob: resp[:n], Present: true})
		resp = resp[n:]
	}
	return out, nil
}
