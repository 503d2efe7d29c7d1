package signaling

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeDeadline = 5 * time.Second
	sendBuffer    = 64
)

var (
	ErrBackpressure = errors.New("peer send buffer full")
	ErrPeerClosed   = errors.New("peer closed")
)

// Conn is an indirection over *websocket.Conn to ease testing.
type Conn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(mt int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Peer is one signaling connection. Outbound messages flow through a
// buffered channel drained by a single write pump, so relay never blocks
// on a slow socket. The send channel is never closed: the hub may still
// hold a snapshot of a departed peer, so TrySend must stay safe to call
// after Close and report an error instead of panicking.
type Peer struct {
	ID   string
	conn Conn
	send chan []byte
	done chan struct{}

	mu     sync.Mutex
	closed bool
}

func NewPeer(conn Conn) *Peer {
	return &Peer{
		ID:   uuid.New().String(),
		conn: conn,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
}

// TrySend queues data for delivery. Delivery is best effort: a full buffer
// or a closed peer drops the message rather than stalling the caller.
func (p *Peer) TrySend(data []byte) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPeerClosed
	}
	p.mu.Unlock()

	select {
	case p.send <- data:
		return nil
	default:
		return ErrBackpressure
	}
}

// SendJSON queues a JSON control message (peer_left etc).
func (p *Peer) SendJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return p.TrySend(data)
}

// Refuse writes a refusal message and a policy-violation close frame
// directly on the socket. Used before the write pump exists, for peers
// that are never admitted.
func (p *Peer) Refuse(v any, closeReason string) {
	data, err := json.Marshal(v)
	if err == nil {
		_ = p.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
		_ = p.conn.WriteMessage(websocket.TextMessage, data)
	}
	_ = p.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	_ = p.conn.WriteMessage(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, closeReason),
	)
	p.Close()
}

// Close is idempotent and safe to race with TrySend.
func (p *Peer) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	close(p.done)
	_ = p.conn.Close()
}

// StartWritePump drains the send channel onto the socket. It owns the
// socket's write side and exits when the peer is closed.
func (p *Peer) StartWritePump() {
	go func() {
		for {
			select {
			case <-p.done:
				return
			case data := <-p.send:
				_ = p.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
				if err := p.conn.WriteMessage(websocket.TextMessage, data); err != nil {
					log.Debug().Err(err).Str("peerId", p.ID).Msg("signal write failed")
					return
				}
			}
		}
	}()
}

// ReadLoop pumps inbound messages to onMessage until the socket errors,
// then runs onClose. Must be called from the connection's owning goroutine.
func (p *Peer) ReadLoop(onMessage func(data []byte), onClose func()) {
	defer onClose()
	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			return
		}
		onMessage(data)
	}
}
