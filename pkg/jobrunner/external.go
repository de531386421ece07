package jobrunner

import "context"

// Sink is the caller-supplied external queue HTM hands enrichment jobs to
// when job_backend names an external queue (spec.md §6: "external-name").
// The core never executes the job itself — it only names it and carries a
// payload the caller's queue worker knows how to re-invoke.
type Sink interface {
	Enqueue(ctx context.Context, queueName, jobName string, payload map[string]any) error
}

// External hands every job off to a caller-managed queue by name, rather
// than running it in-process (spec.md §4.3 JobRunner "external: names the
// queue; implementation uses a similar interface").
type External struct {
	queueName string
	sink      Sink
}

// NewExternal builds an External runner publishing to queueName via sink.
func NewExternal(queueName string, sink Sink) *External {
	return &External{queueName: queueName, sink: sink}
}

// Enqueue hands the job's name and payload to the sink. The job's Run
// closure is never invoked locally — job.Payload carries whatever the
// sink's own worker needs to reconstruct and execute the job.
func (r *External) Enqueue(ctx context.Context, job Job) error {
	return r.sink.Enqueue(ctx, r.queueName, job.Name, job.Payload)
}

func (r *External) Start(ctx context.Context) {}
func (r *External) Stop()                     {}
