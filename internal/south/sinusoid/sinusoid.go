// Package sinusoid is a south plugin that produces a sine wave, one sample per poll.
package sinusoid

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"k8s.io/apimachinery/pkg/util/clock"

	"github.com/fogwell/fogwell/internal/common/fogwellerrors"
	"github.com/fogwell/fogwell/internal/common/logging"
	"github.com/fogwell/fogwell/internal/ingest"
	"github.com/fogwell/fogwell/internal/south/configuration"
)

const (
	PluginName = "sinusoid"
	DataPoint  = "sinusoid"

	defaultSamplesPerCycle = 80
)

// Sink accepts readings; implemented by *ingest.Ingest.
type Sink interface {
	AddReading(ctx context.Context, assetCode string, ts time.Time, readKey *uuid.UUID, reading ingest.Reading) error
}

type Plugin struct {
	asset           string
	interval        time.Duration
	samplesPerCycle int
	clock           clock.Clock
	step            int
	warnings        *logging.SuppressingLogger
	log             *log.Entry
}

func New(config configuration.SinusoidConfig, clk clock.Clock) *Plugin {
	samples := config.SamplesPerCycle
	if samples <= 0 {
		samples = defaultSamplesPerCycle
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	logger := log.WithFields(log.Fields{"plugin": PluginName, "asset": config.Asset})
	return &Plugin{
		asset:           config.Asset,
		interval:        config.Interval,
		samplesPerCycle: samples,
		clock:           clk,
		warnings:        logging.NewSuppressingLogger(logger, 30*time.Second),
		log:             logger,
	}
}

// Poll returns the next sample of the wave.
func (p *Plugin) Poll() ingest.Reading {
	value := math.Sin(2 * math.Pi * float64(p.step) / float64(p.samplesPerCycle))
	p.step = (p.step + 1) % p.samplesPerCycle
	return ingest.Reading{DataPoint: ingest.NumberValue(value)}
}

// Run polls every interval and hands each sample to sink until ctx is done or the sink stops accepting.
func (p *Plugin) Run(ctx context.Context, sink Sink) error {
	ticker := p.clock.NewTicker(p.interval)
	defer ticker.Stop()
	p.log.Infof("Producing a reading every %s", p.interval)
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C():
			readKey := uuid.New()
			err := sink.AddReading(ctx, p.asset, now, &readKey, p.Poll())
			switch {
			case err == nil:
			case fogwellerrors.IsNotRunning(err), errors.Is(err, context.Canceled):
				p.log.Info("Ingest is no longer accepting readings; stopping")
				return nil
			case errors.Is(err, fogwellerrors.ErrBufferFull):
				p.warnings.Warnf("buffer_full", nil, "Buffer is full; dropping reading")
			default:
				return err
			}
		}
	}
}
