// Package htm is the public library surface (spec.md §6): an Engine shared
// by every robot wires the storage, enrichment, and search collaborators
// once, and NewRobot hands back a per-robot Facade — remember, recall,
// forget, restore, create_context, load_file/load_directory/unload_file —
// over that shared long-term memory.
//
// Construction follows the teacher's cmd/tarsy/main.go order (config ->
// database -> services), minus the HTTP server the teacher wires on top:
// HTM ships as a library, not a transport (spec.md §1 marks "HTTP/CLI
// front-ends" out of scope).
package htm

import (
	"context"
	"fmt"

	"github.com/codeready-toolchain/htm/pkg/config"
	"github.com/codeready-toolchain/htm/pkg/filesource"
	"github.com/codeready-toolchain/htm/pkg/jobrunner"
	"github.com/codeready-toolchain/htm/pkg/llmsvc"
	"github.com/codeready-toolchain/htm/pkg/longtermmemory"
	"github.com/codeready-toolchain/htm/pkg/robotgroup"
	"github.com/codeready-toolchain/htm/pkg/store"
	"github.com/codeready-toolchain/htm/pkg/tagindex"
)

// Engine holds every collaborator shared across robots: the store
// connection, the enrichment services, the job runner, and the long-term
// memory built on top of them. Per-robot state (a Facade's WorkingMemory)
// is the only thing NewRobot creates fresh.
type Engine struct {
	cfg    *config.Config
	store  *store.Store
	ltm    *longtermmemory.LongTermMemory
	jobs   jobrunner.Runner
	loader *filesource.Loader

	ownsStore bool
}

// Option customizes Engine construction beyond cfg.
type Option func(*engineOptions)

type engineOptions struct {
	jobSink jobrunner.Sink
	store   *store.Store
}

// WithJobSink supplies the external queue sink used when
// cfg.JobBackend == config.JobBackendExternal (spec.md §4.3 "external").
func WithJobSink(sink jobrunner.Sink) Option {
	return func(o *engineOptions) { o.jobSink = sink }
}

// WithStore reuses an already-open *store.Store instead of opening a new
// connection from cfg.DatabaseURL (used by tests against a
// testcontainers-managed database).
func WithStore(st *store.Store) Option {
	return func(o *engineOptions) { o.store = st }
}

// New validates cfg, opens (or reuses) the store, and wires every shared
// collaborator: embedding/tag services, the tag sampler and validator, the
// job runner, long-term memory, and the file-source loader.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Engine, error) {
	if err := config.NewValidator(cfg).ValidateAll(); err != nil {
		return nil, err
	}

	var o engineOptions
	for _, opt := range opts {
		opt(&o)
	}

	st := o.store
	ownsStore := false
	if st == nil {
		opened, err := store.Open(ctx, store.Config{
			DSN:          cfg.DatabaseURL,
			MaxOpenConns: cfg.DatabasePoolSize,
		})
		if err != nil {
			return nil, fmt.Errorf("htm: open store: %w", err)
		}
		st = opened
		ownsStore = true
	}

	embeddingSvc := llmsvc.NewEmbeddingService(cfg.EmbeddingGenerator, cfg.StorageEmbeddingWidth)
	tagValidator := tagindex.NewValidator(cfg.MaxTagDepth)
	tagSvc := llmsvc.NewTagService(cfg.TagExtractor, tagValidator)
	sampler := tagindex.NewSampler(st, cfg.TagOntologySampleSize)

	jobs, err := buildJobRunner(cfg, o.jobSink)
	if err != nil {
		if ownsStore {
			_ = st.Close()
		}
		return nil, err
	}
	jobs.Start(ctx)

	ltm := longtermmemory.New(cfg, st, embeddingSvc, tagSvc, sampler, tagValidator, jobs)
	loader := filesource.NewLoader(st, cfg.FileReader, cfg.TokenCounter, embeddingSvc, tagSvc, sampler, jobs, cfg.FileChunkTokens)

	return &Engine{
		cfg:       cfg,
		store:     st,
		ltm:       ltm,
		jobs:      jobs,
		loader:    loader,
		ownsStore: ownsStore,
	}, nil
}

func buildJobRunner(cfg *config.Config, sink jobrunner.Sink) (jobrunner.Runner, error) {
	switch cfg.JobBackend {
	case config.JobBackendThread:
		return jobrunner.NewThreadPool(cfg.JobConcurrency, cfg.JobConcurrency*4), nil
	case config.JobBackendExternal:
		if sink == nil {
			return nil, fmt.Errorf("htm: job_backend external requires htm.WithJobSink")
		}
		return jobrunner.NewExternal(string(cfg.JobBackend), sink), nil
	case config.JobBackendInline, "":
		return jobrunner.NewInline(), nil
	default:
		return nil, fmt.Errorf("htm: unknown job_backend %q", cfg.JobBackend)
	}
}

// Store exposes the underlying *store.Store for callers building
// additional collaborators (e.g. robotgroup.Group's PubSub transport).
func (e *Engine) Store() *store.Store { return e.store }

// Config returns the Config the Engine was built from.
func (e *Engine) Config() *config.Config { return e.cfg }

// NewGroup builds a robotgroup.Group sharing this Engine's long-term
// memory, store, and pub/sub transport (spec.md §4.7).
func (e *Engine) NewGroup(name string, maxTokens int) *robotgroup.Group {
	if maxTokens <= 0 {
		maxTokens = e.cfg.WorkingMemorySizeTokens
	}
	return robotgroup.New(name, e.ltm, e.store, e.store, maxTokens)
}

// Close stops the job runner and, if Engine opened the store itself,
// closes it.
func (e *Engine) Close() error {
	e.jobs.Stop()
	if e.ownsStore {
		return e.store.Close()
	}
	return nil
}
