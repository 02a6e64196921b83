package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"
)

const (
	outboxSize       = 8
	maxRedials       = 10
	firstBackoff     = time.Second
	maxBackoff       = 30 * time.Second
	writeWait        = 10 * time.Second
	handshakeTimeout = 10 * time.Second
	ackTimeout       = 10 * time.Second
)

// ErrClosed is returned by exports attempted after Close.
var ErrClosed = errors.New("websocket backend closed")

// link owns the collector connection. One writer goroutine drains the
// outbox; acks are routed to the export waiting on their sequence number.
type link struct {
	mu      sync.Mutex
	conn    *ws.Conn
	closed  bool
	pending map[uint64]chan struct{}
	// last export, replayed after a redial
	last []byte

	outbox chan []byte
	done   chan struct{}

	url    string
	header http.Header
	dialer ws.Dialer
	logger *slog.Logger
}

func newLink(logger *slog.Logger) *link {
	return &link{
		pending: make(map[uint64]chan struct{}),
		outbox:  make(chan []byte, outboxSize),
		done:    make(chan struct{}),
		dialer:  ws.Dialer{HandshakeTimeout: handshakeTimeout},
		logger:  logger,
	}
}

// open dials the collector. The secret travels as a bearer token.
func (l *link) open(rawURL, secret string) error {
	l.url = rawURL
	l.header = http.Header{}
	if secret != "" {
		l.header.Set("Authorization", "Bearer "+secret)
	}

	conn, _, err := l.dialer.Dial(l.url, l.header)
	if err != nil {
		return fmt.Errorf("dialing collector: %w", err)
	}
	l.attach(conn)
	return nil
}

func (l *link) attach(conn *ws.Conn) {
	l.mu.Lock()
	l.conn = conn
	l.mu.Unlock()
	go l.writer(conn)
	go l.reader(conn)
}

func (l *link) writer(conn *ws.Conn) {
	for {
		select {
		case <-l.done:
			return
		case data := <-l.outbox:
			err := conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err == nil {
				err = conn.WriteMessage(ws.TextMessage, data)
			}
			if err != nil {
				l.logger.Warn("Collector write failed", "error", err)
				l.lost(conn)
				return
			}
		}
	}
}

func (l *link) reader(conn *ws.Conn) {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-l.done:
			default:
				l.logger.Warn("Collector read failed", "error", err)
				l.lost(conn)
			}
			return
		}

		var ack AckMessage
		if err := json.Unmarshal(msg, &ack); err != nil || ack.Type != TypeAck {
			l.logger.Debug("Ignoring collector message", "raw", string(msg))
			continue
		}
		l.resolve(ack.Seq)
	}
}

func (l *link) resolve(seq uint64) {
	l.mu.Lock()
	ch, ok := l.pending[seq]
	delete(l.pending, seq)
	l.mu.Unlock()
	if ok {
		close(ch)
	}
}

// lost tears down conn and starts redialing, once per connection.
func (l *link) lost(conn *ws.Conn) {
	l.mu.Lock()
	if l.closed || l.conn != conn {
		l.mu.Unlock()
		return
	}
	l.conn = nil
	l.mu.Unlock()
	_ = conn.Close()
	go l.redial()
}

func backoff(attempt int) time.Duration {
	d := firstBackoff << (attempt - 1)
	if d <= 0 || d > maxBackoff {
		return maxBackoff
	}
	return d
}

// redial reconnects with exponential backoff and replays the last export;
// the collector keeps the highest seq it has seen.
func (l *link) redial() {
	for attempt := 1; attempt <= maxRedials; attempt++ {
		wait := backoff(attempt)
		l.logger.Info("Redialing collector", "attempt", attempt, "backoff", wait)
		select {
		case <-l.done:
			return
		case <-time.After(wait):
		}

		conn, _, err := l.dialer.Dial(l.url, l.header)
		if err != nil {
			l.logger.Warn("Redial failed", "attempt", attempt, "error", err)
			continue
		}

		l.mu.Lock()
		last := l.last
		l.mu.Unlock()
		if last != nil {
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err == nil {
				err = conn.WriteMessage(ws.TextMessage, last)
			}
			if err != nil {
				l.logger.Warn("Replaying last export failed", "error", err)
				_ = conn.Close()
				continue
			}
		}

		l.logger.Info("Collector reconnected", "attempt", attempt)
		l.attach(conn)
		return
	}
	l.logger.Error("Giving up on collector", "attempts", maxRedials)
}

// deliver queues data as export seq and waits for its ack.
func (l *link) deliver(ctx context.Context, seq uint64, data []byte, timeout time.Duration) error {
	acked := make(chan struct{})
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	l.pending[seq] = acked
	l.last = data
	l.mu.Unlock()
	defer func() {
		l.mu.Lock()
		delete(l.pending, seq)
		l.mu.Unlock()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case l.outbox <- data:
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		return ErrClosed
	}

	select {
	case <-acked:
		return nil
	case <-timer.C:
		return fmt.Errorf("no ack for export %d after %s", seq, timeout)
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		return ErrClosed
	}
}

// close sends a close frame and stops the reader, writer and any redial.
func (l *link) close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	close(l.done)
	conn := l.conn
	l.conn = nil
	l.mu.Unlock()

	if conn == nil {
		return nil
	}
	_ = conn.WriteControl(ws.CloseMessage,
		ws.FormatCloseMessage(ws.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	return conn.Close()
}
