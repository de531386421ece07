package tagindex

import (
	"context"
	"log/slog"
)

// OrphanReaper soft-deletes tags with no active node_tag references.
type OrphanReaper interface {
	ReapOrphanTags(ctx context.Context) (reaped int, err error)
}

// Reap runs orphan cleanup on demand, logging how many tags were reaped.
func Reap(ctx context.Context, r OrphanReaper) (int, error) {
	n, err := r.ReapOrphanTags(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		slog.Info("reaped orphan tags", "count", n)
	}
	return n, nil
}
