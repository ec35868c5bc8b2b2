// Package pipeline assembles the extraction worker and its dispatcher from
// configuration. The api, worker and cron-worker binaries share it so every
// process talks to the same store, lease and extractor.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/angelmondragon/spoolhub-backend/internal/uploads"
	"github.com/angelmondragon/spoolhub-backend/internal/vision"
	"github.com/angelmondragon/spoolhub-backend/pkg/bigquery"
	"github.com/angelmondragon/spoolhub-backend/pkg/config"
	"github.com/angelmondragon/spoolhub-backend/pkg/db"
	"github.com/angelmondragon/spoolhub-backend/pkg/logger"
	"github.com/angelmondragon/spoolhub-backend/pkg/metrics"
	"github.com/angelmondragon/spoolhub-backend/pkg/pubsub"
	"github.com/angelmondragon/spoolhub-backend/pkg/redis"
	"github.com/angelmondragon/spoolhub-backend/pkg/storage"
	"github.com/angelmondragon/spoolhub-backend/pkg/storage/gcs"
	"github.com/angelmondragon/spoolhub-backend/pkg/storage/local"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Params struct {
	Config     *config.Config
	Logger     *logger.Logger
	DB         *db.Client
	Redis      *redis.Client
	Registerer prometheus.Registerer
}

// Pipeline holds the wired extraction components of one process.
type Pipeline struct {
	Repo       uploads.Repository
	Store      storage.ImageStore
	Processor  *uploads.Processor
	Lease      uploads.Lease
	Runner     *uploads.Runner
	Dispatcher uploads.Dispatcher
	PubSub     *pubsub.Client

	logg      *logger.Logger
	readiness map[string]Pinger
	closers   []namedCloser
}

type namedCloser struct {
	name   string
	closer io.Closer
}

// New opens the clients the extraction pipeline needs. In inline dispatch
// mode extraction runs inside this process; in pubsub mode jobs are
// published for cmd/worker.
func New(ctx context.Context, params Params) (*Pipeline, error) {
	if params.Config == nil {
		return nil, errors.New("config is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.DB == nil {
		return nil, errors.New("database client is required")
	}
	if params.Redis == nil {
		return nil, errors.New("redis client is required")
	}

	p := &Pipeline{
		Repo:   uploads.NewRepository(params.DB.DB()),
		Runner: uploads.NewRunner(),
		logg:   params.Logger,
		readiness: map[string]Pinger{
			"database": params.DB,
			"redis":    params.Redis,
		},
	}
	if err := p.build(ctx, params); err != nil {
		return nil, multierr.Append(err, p.closeClients())
	}
	return p, nil
}

func (p *Pipeline) build(ctx context.Context, params Params) error {
	cfg := params.Config

	store, err := p.openStore(ctx, cfg)
	if err != nil {
		return err
	}
	p.Store = store

	extractor, err := p.openExtractor(ctx, cfg.Vision)
	if err != nil {
		return err
	}

	recorder, err := p.openRecorder(ctx, cfg)
	if err != nil {
		return err
	}

	lease, err := uploads.NewRedisLease(params.Redis, cfg.Uploads.LeaseTTL, p.logg)
	if err != nil {
		return fmt.Errorf("creating extraction lease: %w", err)
	}
	p.Lease = lease

	processor, err := uploads.NewProcessor(uploads.ProcessorParams{
		Repo:      p.Repo,
		Store:     store,
		Extractor: extractor,
		Outcomes:  recorder,
		Metrics:   metrics.NewExtractionMetrics(params.Registerer),
		Logger:    p.logg,
	})
	if err != nil {
		return fmt.Errorf("creating extraction processor: %w", err)
	}
	p.Processor = processor

	if !cfg.Uploads.UsesPubSub() {
		dispatcher, err := uploads.NewInlineDispatcher(p.Runner, lease, processor, p.logg)
		if err != nil {
			return fmt.Errorf("creating inline dispatcher: %w", err)
		}
		p.Dispatcher = dispatcher
		return nil
	}

	client, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, p.logg)
	if err != nil {
		return fmt.Errorf("bootstrapping pubsub: %w", err)
	}
	p.PubSub = client
	p.track("pubsub", client, client)

	dispatcher, err := uploads.NewPubSubDispatcher(uploads.PublisherFunc(client.ExtractionPublisher()), lease)
	if err != nil {
		return fmt.Errorf("creating pubsub dispatcher: %w", err)
	}
	p.Dispatcher = dispatcher
	return nil
}

func (p *Pipeline) openStore(ctx context.Context, cfg *config.Config) (storage.ImageStore, error) {
	if !cfg.Storage.IsGCS() {
		store, err := local.New(cfg.Storage)
		if err != nil {
			return nil, fmt.Errorf("opening local image store: %w", err)
		}
		p.logg.Info(p.logg.WithField(ctx, "dir", cfg.Storage.LocalDir), "using local image store")
		return store, nil
	}
	client, err := gcs.NewClient(ctx, cfg.GCS, cfg.GCP, p.logg)
	if err != nil {
		return nil, fmt.Errorf("bootstrapping gcs: %w", err)
	}
	p.track("gcs", client, client)
	return gcs.NewStore(client), nil
}

func (p *Pipeline) openExtractor(ctx context.Context, cfg config.VisionConfig) (vision.Extractor, error) {
	if strings.TrimSpace(cfg.GeminiAPIKey) == "" {
		p.logg.Warn(ctx, "gemini api key not set; every extraction will fail")
		return vision.Unconfigured{}, nil
	}
	gemini, err := vision.NewGemini(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating gemini extractor: %w", err)
	}
	p.track("gemini", gemini, nil)
	return gemini, nil
}

func (p *Pipeline) openRecorder(ctx context.Context, cfg *config.Config) (uploads.OutcomeRecorder, error) {
	if !cfg.BigQuery.Enabled {
		return uploads.NopRecorder{}, nil
	}
	client, err := bigquery.NewClient(ctx, cfg.GCP, cfg.BigQuery, p.logg)
	if err != nil {
		return nil, fmt.Errorf("bootstrapping bigquery: %w", err)
	}
	p.track("bigquery", client, client)
	return uploads.NewBigQueryRecorder(client)
}

func (p *Pipeline) track(name string, closer io.Closer, pinger Pinger) {
	p.closers = append(p.closers, namedCloser{name: name, closer: closer})
	if pinger != nil {
		p.readiness[name] = pinger
	}
}

// Readiness lists the dependencies a readiness probe should ping.
func (p *Pipeline) Readiness() map[string]Pinger {
	out := make(map[string]Pinger, len(p.readiness))
	for name, pinger := range p.readiness {
		out[name] = pinger
	}
	return out
}

// Consumer builds the Pub/Sub consumer that feeds the processor.
func (p *Pipeline) Consumer() (*uploads.Consumer, error) {
	if p.PubSub == nil {
		return nil, errors.New("pubsub dispatch mode is not enabled")
	}
	return uploads.NewConsumer(p.PubSub.ExtractionSubscription(), p.Lease, p.Processor, p.logg)
}

// Close interrupts in-process extraction runs, waits for them until ctx ends,
// then releases clients. Interrupted sessions stay processing and are resumed
// by the stalled-session job.
func (p *Pipeline) Close(ctx context.Context) error {
	var err error
	if p.Runner != nil {
		err = multierr.Append(err, p.Runner.Shutdown(ctx))
	}
	return multierr.Append(err, p.closeClients())
}

func (p *Pipeline) closeClients() error {
	var err error
	for i := len(p.closers) - 1; i >= 0; i-- {
		c := p.closers[i]
		if closeErr := c.closer.Close(); closeErr != nil {
			err = multierr.Append(err, fmt.Errorf("closing %s: %w", c.name, closeErr))
		}
	}
	p.closers = nil
	return err
}
