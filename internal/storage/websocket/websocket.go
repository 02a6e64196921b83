package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/geoarkit/placer/internal/config"
	"github.com/geoarkit/placer/internal/places"
)

// Message types exchanged with the collector.
const (
	TypeExport = "export"
	TypeAck    = "ack"
)

// Envelope wraps every message sent to the collector.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// AckMessage is sent by the collector once the export with Seq is stored.
type AckMessage struct {
	Type string `json:"type"`
	Seq  uint64 `json:"seq"`
}

// ExportPayload carries one snapshot.
type ExportPayload struct {
	Seq         uint64                            `json:"seq"`
	ExportedAt  time.Time                         `json:"exportedAt"`
	Places      []places.Place                    `json:"places"`
	SavedBounds map[string]places.VisibilityRange `json:"savedBounds,omitempty"`
}

// Backend streams exports over WebSocket to a remote collector.
// It implements storage.Backend but not storage.Loader.
type Backend struct {
	link *link
	cfg  config.WebSocketConfig
	seq  atomic.Uint64
}

// New creates a new WebSocket storage backend.
func New(cfg config.WebSocketConfig, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{
		link: newLink(logger),
		cfg:  cfg,
	}
}

// Init connects to the collector.
func (b *Backend) Init() error {
	return b.link.open(b.cfg.URL, b.cfg.Secret)
}

// Close disconnects from the collector.
func (b *Backend) Close() error {
	return b.link.close()
}

// marshalEnvelope builds a JSON-encoded Envelope from a message type and payload.
func marshalEnvelope(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	data, err := json.Marshal(Envelope{Type: msgType, Payload: raw})
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", msgType, err)
	}
	return data, nil
}

// Export sends the snapshot and waits for the collector's ack.
func (b *Backend) Export(ctx context.Context, snap places.Snapshot) error {
	seq := b.seq.Add(1)
	data, err := marshalEnvelope(TypeExport, ExportPayload{
		Seq:         seq,
		ExportedAt:  snap.ExportedAt,
		Places:      snap.Places,
		SavedBounds: snap.SavedBounds,
	})
	if err != nil {
		return err
	}
	return b.link.deliver(ctx, seq, data, ackTimeout)
}
