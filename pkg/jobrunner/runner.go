// Package jobrunner implements the pluggable async enrichment backend named
// in spec.md §4.3: inline (synchronous), thread (in-process bounded worker
// pool), or external (hand off to a caller-supplied named queue). All three
// give at-least-once semantics: a job that errors is logged and dropped,
// never retried, matching spec.md §5's "operation fails ... job is
// considered complete (no retry)".
package jobrunner

import (
	"context"
	"log/slog"
)

// Job is a single unit of enrichment work, identified by name for logging
// and (in the external backend) for dispatch. Payload carries the data an
// external queue's own worker would need to reconstruct and run the job;
// the inline and thread backends ignore it and call Run directly.
type Job struct {
	Name    string
	Payload map[string]any
	Run     func(ctx context.Context) error
}

// Runner schedules Jobs according to its backend's policy. Enqueue never
// blocks the caller beyond its own backend's bounded capacity.
type Runner interface {
	Enqueue(ctx context.Context, job Job) error
	Start(ctx context.Context)
	Stop()
}

// Inline runs every job synchronously within the Enqueue call, in the
// caller's own goroutine. This is the default (spec.md §6 job_backend
// default "inline") and the simplest correct backend for tests.
type Inline struct{}

// NewInline builds an Inline runner.
func NewInline() *Inline { return &Inline{} }

func (r *Inline) Enqueue(ctx context.Context, job Job) error {
	if err := job.Run(ctx); err != nil {
		slog.Error("inline job failed", "job", job.Name, "error", err)
	}
	return nil
}

func (r *Inline) Start(ctx context.Context) {}
func (r *Inline) Stop()                     {}
