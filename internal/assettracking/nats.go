package assettracking

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"

	"github.com/fogwell/fogwell/internal/common/config"
	"github.com/fogwell/fogwell/internal/ingest"
)

// NatsEmitter publishes each event as JSON on a single subject.
type NatsEmitter struct {
	conn    *nats.Conn
	subject string
}

var _ ingest.Emitter = &NatsEmitter{}

func NewNatsEmitter(conn *nats.Conn, subject string) *NatsEmitter {
	return &NatsEmitter{conn: conn, subject: subject}
}

func ConnectNats(cfg config.NatsConfig, name string) (*nats.Conn, error) {
	options := []nats.Option{nats.Name(name)}
	if cfg.ConnTimeout > 0 {
		options = append(options, nats.Timeout(cfg.ConnTimeout))
	}
	conn, err := nats.Connect(strings.Join(cfg.Servers, ","), options...)
	return conn, errors.WithStack(err)
}

// Emit publishes the event and waits for the server to acknowledge the flush, bounded by ctx.
func (e *NatsEmitter) Emit(ctx context.Context, event ingest.AssetTrackingEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return errors.WithStack(err)
	}
	if err := e.conn.Publish(e.subject, data); err != nil {
		return errors.Wrapf(err, "error when publishing to subject %q", e.subject)
	}
	return errors.WithStack(e.conn.FlushWithContext(ctx))
}
