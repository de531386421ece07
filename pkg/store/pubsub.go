package store

import (
	"context"
	"fmt"
)

// Notify broadcasts payload on channel via pg_notify. Postgres caps NOTIFY
// payloads at 8000 bytes; callers publishing larger payloads should send a
// routing envelope and let receivers fetch the full row from the store.
func (s *Store) Notify(ctx context.Context, channel, payload string) error {
	if len(payload) > 7900 {
		return fmt.Errorf("store: notify payload exceeds safe NOTIFY size (%d bytes)", len(payload))
	}
	_, err := s.db.ExecContext(ctx, "SELECT pg_notify($1, $2)", channel, payload)
	if err != nil {
		return fmt.Errorf("store: pg_notify: %w", err)
	}
	return nil
}

// Subscribe registers fn to run for every NOTIFY received on channel and
// issues LISTEN on the dedicated listener connection.
func (s *Store) Subscribe(ctx context.Context, channel string, fn func(payload []byte)) error {
	s.listener.OnNotify(channel, fn)
	return s.listener.Subscribe(ctx, channel)
}

// Unsubscribe issues UNLISTEN for channel. Registered handlers are left in
// place; to fully detach, build a fresh Store subscription.
func (s *Store) Unsubscribe(ctx context.Context, channel string) error {
	return s.listener.Unsubscribe(ctx, channel)
}
