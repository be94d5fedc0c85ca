// Package south runs a south service: a plugin producing readings, the ingest pipeline buffering them and
// the stores they end up in.
package south

import (
	"context"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/fogwell/fogwell/internal/common/health"
	"github.com/fogwell/fogwell/internal/common/serve"
	"github.com/fogwell/fogwell/internal/ingest"
	"github.com/fogwell/fogwell/internal/south/configuration"
	"github.com/fogwell/fogwell/internal/south/sinusoid"
)

const defaultShutdownTimeout = 30 * time.Second

type Service struct {
	config    configuration.SouthConfiguration
	registry  *prometheus.Registry
	checker   *health.MultiChecker
	resources *resources
	ingest    *ingest.Ingest
	plugin    *sinusoid.Plugin
}

// New connects to every configured backend and builds the pipeline. Nothing runs until Run is called.
func New(ctx context.Context, config configuration.SouthConfiguration) (*Service, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	checker := health.NewMultiChecker()
	r := newResources(config, checker)

	s, err := build(ctx, config, registry, checker, r)
	if err != nil {
		if closeErr := r.Close(); closeErr != nil {
			err = multierror.Append(err, closeErr)
		}
		return nil, err
	}
	return s, nil
}

func build(
	ctx context.Context,
	config configuration.SouthConfiguration,
	registry *prometheus.Registry,
	checker *health.MultiChecker,
	r *resources,
) (*Service, error) {
	store, err := r.readingStore(ctx)
	if err != nil {
		return nil, errors.WithMessagef(err, "opening %s reading store", config.Storage.Backend)
	}
	stats, err := r.statisticsStore(ctx)
	if err != nil {
		return nil, errors.WithMessagef(err, "opening %s statistics store", config.Statistics.Backend)
	}
	emitter, err := r.emitter(ctx)
	if err != nil {
		return nil, errors.WithMessagef(err, "opening %s asset tracking", config.AssetTracking.Backend)
	}
	i, err := ingest.New(config.Ingest, ingest.Collaborators{
		ServiceName: config.ServiceName,
		PluginName:  config.PluginName,
		Store:       store,
		Statistics:  stats,
		Emitter:     emitter,
		Registerer:  registry,
	})
	if err != nil {
		return nil, err
	}
	checker.Add(i)
	return &Service{
		config:    config,
		registry:  registry,
		checker:   checker,
		resources: r,
		ingest:    i,
		plugin:    sinusoid.New(config.Sinusoid, nil),
	}, nil
}

// Run produces readings until ctx is done, then drains the pipeline and closes every connection.
func (s *Service) Run(ctx context.Context) error {
	// The pipeline is stopped explicitly below so that the drain finishes before connections are closed.
	if err := s.ingest.Start(context.Background()); err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"service": s.config.ServiceName,
		"plugin":  s.config.PluginName,
		"storage": s.config.Storage.Backend,
	}).Info("South service started")

	g, gctx := errgroup.WithContext(ctx)
	if s.config.MetricsPort > 0 {
		gatherers := prometheus.Gatherers{s.registry, prometheus.DefaultGatherer}
		g.Go(func() error {
			return serve.ListenAndServe(gctx, s.config.MetricsPort, serve.NewMux(gatherers, s.checker))
		})
	}
	g.Go(func() error {
		return s.plugin.Run(gctx, s.ingest)
	})
	var result *multierror.Error
	if err := g.Wait(); err != nil {
		result = multierror.Append(result, err)
	}

	timeout := s.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	stopCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := s.ingest.Stop(stopCtx); err != nil {
		result = multierror.Append(result, err)
	}
	if err := s.resources.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	log.Info("South service stopped")
	return result.ErrorOrNil()
}

func (s *Service) Snapshot() ingest.Snapshot {
	return s.ingest.Snapshot()
}

// Run builds a service from config and runs it until ctx is done.
func Run(ctx context.Context, config configuration.SouthConfiguration) error {
	s, err := New(ctx, config)
	if err != nil {
		return err
	}
	return s.Run(ctx)
}
