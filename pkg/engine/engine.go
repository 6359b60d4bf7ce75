// Package engine assembles the evidence engine: node registry, CPT
// library, network builder, inference executor, ESI scoring, and the
// surrounding audit, metrics and event plumbing. External callers work
// through this facade; the domain packages stay free of wiring.
package engine

import (
	"fmt"
	"os"
	"sync"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/ravkorsurv/korinsic-ai-core-sub000/pkg/archive"
	"github.com/ravkorsurv/korinsic-ai-core-sub000/pkg/audit"
	"github.com/ravkorsurv/korinsic-ai-core-sub000/pkg/config"
	"github.com/ravkorsurv/korinsic-ai-core-sub000/pkg/cpt"
	"github.com/ravkorsurv/korinsic-ai-core-sub000/pkg/esi"
	"github.com/ravkorsurv/korinsic-ai-core-sub000/pkg/events"
	"github.com/ravkorsurv/korinsic-ai-core-sub000/pkg/inference"
	"github.com/ravkorsurv/korinsic-ai-core-sub000/pkg/logging"
	"github.com/ravkorsurv/korinsic-ai-core-sub000/pkg/metrics"
	"github.com/ravkorsurv/korinsic-ai-core-sub000/pkg/network"
	"github.com/ravkorsurv/korinsic-ai-core-sub000/pkg/nodes"
)

// Engine owns the full evaluation pipeline and its operational
// surroundings.
type Engine struct {
	cfg    *config.Config
	logger logging.Logger

	registry *nodes.Registry
	library  *cpt.Library
	builder  *network.Builder
	cache    *network.Cache
	executor *inference.Executor
	scorer   *esi.Calculator
	metrics  *metrics.Registry

	trails    []audit.Trail
	recent    *audit.MemoryTrail
	persisted *audit.PersistentTrail
	publisher *events.Publisher
	archiver  *archive.Archiver

	mu       sync.RWMutex
	networks map[string]*network.CompiledNetwork // by spec name
}

// New assembles an engine from validated configuration.
func New(cfg *config.Config, logger logging.Logger) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewJSONLogger(os.Stdout, logging.ParseLevel(cfg.Logging.Level))
	}

	e := &Engine{
		cfg:      cfg,
		logger:   logger,
		registry: nodes.NewRegistry(),
		cache:    network.NewCache(),
		executor: inference.NewExecutor(logger),
		metrics:  metrics.NewRegistry(),
		networks: make(map[string]*network.CompiledNetwork),
	}

	libOpts := []cpt.Option{cpt.WithLogger(logger)}
	if secret := cfg.AttestationSecret(); len(secret) > 0 {
		attestor, err := cpt.NewAttestor(secret, cfg.Attestation.Issuer)
		if err != nil {
			return nil, err
		}
		libOpts = append(libOpts, cpt.WithAttestor(attestor))
	}
	e.library = cpt.NewLibrary(e.registry, libOpts...)
	e.builder = network.NewBuilder(e.registry, e.library,
		network.WithCache(e.cache),
		network.WithLogger(logger),
		network.WithDefaultThreshold(cfg.FanIn.Threshold))

	scorer, err := buildScorer(cfg)
	if err != nil {
		return nil, err
	}
	e.scorer = scorer

	e.recent = audit.NewMemoryTrail(cfg.Audit.MemoryEvents)
	e.trails = []audit.Trail{e.recent}
	if !cfg.Audit.DisablePersistence {
		persisted, err := audit.NewPersistentTrail(audit.PersistentConfig{
			Dir:          cfg.Audit.Dir,
			RotationSize: cfg.Audit.RotationSize,
		})
		if err != nil {
			return nil, err
		}
		e.persisted = persisted
		e.trails = append(e.trails, persisted)
	}

	if cfg.Events.ListenAddr != "" {
		publisher, err := events.NewPublisher(cfg.Events.ListenAddr, logger)
		if err != nil {
			e.closeQuietly()
			return nil, err
		}
		e.publisher = publisher
	}

	if sink, err := buildArchiveSink(cfg); err != nil {
		e.closeQuietly()
		return nil, err
	} else if sink != nil {
		e.archiver = archive.NewArchiver(e.library, sink, logger)
	}

	logger.Info("engine assembled",
		logging.Component("engine"),
		logging.String("archive_backend", cfg.Archive.Backend),
		logging.Bool("attestation", len(cfg.AttestationSecret()) > 0))
	return e, nil
}

func buildScorer(cfg *config.Config) (*esi.Calculator, error) {
	weights := esi.DefaultWeights()
	if w := cfg.ESI.Weights; w != nil {
		weights = esi.Weights{
			ActivationRatio:     w.ActivationRatio,
			MeanConfidence:      w.MeanConfidence,
			FallbackPenalty:     w.FallbackPenalty,
			ContributionEntropy: w.ContributionEntropy,
			ClusterDiversity:    w.ClusterDiversity,
		}
	}
	cutoffs := esi.DefaultCutoffs()
	if c := cfg.ESI.Cutoffs; c != nil {
		cutoffs = esi.Cutoffs{High: c.High, Moderate: c.Moderate}
	}
	return esi.NewCalculator(weights, cutoffs)
}

// Close releases sockets and flushes the audit trail.
func (e *Engine) Close() error {
	var firstErr error
	if e.publisher != nil {
		if err := e.publisher.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if e.persisted != nil {
		if err := e.persisted.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (e *Engine) closeQuietly() {
	_ = e.Close()
}

// Library exposes the CPT record store for operator tooling.
func (e *Engine) Library() *cpt.Library { return e.library }

// Registry exposes the node registry for operator tooling.
func (e *Engine) Registry() *nodes.Registry { return e.registry }

// Metrics exposes the engine's metric registry for scraping.
func (e *Engine) Metrics() *metrics.Registry { return e.metrics }

// RecentEvents returns the n most recent audit events.
func (e *Engine) RecentEvents(n int) []*audit.Event {
	return e.recent.Recent(n)
}

// AuditEventCount reports how many audit events the in-memory trail holds.
func (e *Engine) AuditEventCount() int64 {
	return e.recent.EventCount()
}

// InstallBuiltinTypologies loads the shipped surveillance scenario
// catalog into the registry and library.
func (e *Engine) InstallBuiltinTypologies() error {
	for _, tpl := range cpt.BuiltinTemplates() {
		records, err := tpl.Install(e.registry, e.library)
		if err != nil {
			return fmt.Errorf("install typology %q: %w", tpl.Name, err)
		}
		for _, rec := range records {
			if err := e.library.AttachTypology(rec.ID, tpl.Name); err != nil {
				return fmt.Errorf("install typology %q: %w", tpl.Name, err)
			}
		}
		e.logger.Info("typology installed",
			logging.Typology(tpl.Name),
			logging.Int("drafts", len(records)))
	}
	return nil
}

// record writes an audit event to every configured trail.
func (e *Engine) record(event *audit.Event) {
	for _, trail := range e.trails {
		if err := trail.Record(event); err != nil {
			e.logger.Error("audit record failed", logging.Error(err))
		}
	}
}

// publish sends a lifecycle event when a publisher is configured.
func (e *Engine) publish(topic string, payload map[string]any) {
	if e.publisher == nil {
		return
	}
	if err := e.publisher.Publish(topic, payload); err != nil {
		e.logger.Warn("event publish failed",
			logging.String("topic", topic),
			logging.Error(err))
	}
}

// Networks lists the names of registered networks, sorted.
func (e *Engine) Networks() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := maps.Keys(e.networks)
	slices.Sort(names)
	return names
}

// Network returns a registered compiled network by name.
func (e *Engine) Network(name string) (*network.CompiledNetwork, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	net, ok := e.networks[name]
	return net, ok
}
