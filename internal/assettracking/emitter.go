// Package assettracking contains the emitters that forward asset tracking events out of the process.
package assettracking

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/fogwell/fogwell/internal/ingest"
)

// LogEmitter writes each event to the log and nothing else.
type LogEmitter struct {
	log *log.Entry
}

var _ ingest.Emitter = &LogEmitter{}

func NewLogEmitter(logger *log.Entry) *LogEmitter {
	return &LogEmitter{log: logger}
}

func (e *LogEmitter) Emit(_ context.Context, event ingest.AssetTrackingEvent) error {
	e.log.WithFields(log.Fields{
		"asset":   event.Asset,
		"event":   event.Event,
		"service": event.Service,
		"plugin":  event.Plugin,
	}).Info("asset tracked")
	return nil
}
