// Package worker manages the embedded Asynq task worker.
//
// The worker runs as a goroutine inside the gateway process, connecting to
// Redis for persistent async task processing. Its only job today is
// delivering session audit records to the host store.
package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"

	"github.com/termgate/termgate/internal/audit"
	"github.com/termgate/termgate/internal/hoststore"
)

// Worker manages the Asynq server processing bridge background tasks.
type Worker struct {
	server *asynq.Server
	store  *hoststore.Client
}

// New creates a Worker bound to redisAddr. store receives delivered audit
// records; when nil, records are logged instead.
func New(redisAddr string, store *hoststore.Client) *Worker {
	srv := asynq.NewServer(
		asynq.RedisClientOpt{Addr: redisAddr},
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
		},
	)
	return &Worker{server: srv, store: store}
}

// Start begins processing tasks in a background goroutine.
// This should be called only once during the application lifecycle.
func (w *Worker) Start() {
	mux := asynq.NewServeMux()
	mux.HandleFunc(audit.TaskSessionRecord, w.handleSessionRecord)

	go func() {
		if err := w.server.Run(mux); err != nil {
			log.Error().Err(err).Msg("asynq worker error")
		}
	}()
}

// Shutdown gracefully stops the worker.
func (w *Worker) Shutdown() {
	w.server.Shutdown()
}

func (w *Worker) handleSessionRecord(ctx context.Context, t *asynq.Task) error {
	var entry audit.Entry
	if err := json.Unmarshal(t.Payload(), &entry); err != nil {
		// Malformed payloads can never succeed; drop instead of retrying.
		log.Error().Err(err).Msg("worker: malformed session record")
		return nil
	}

	if w.store == nil {
		log.Info().
			Str("session_id", entry.SessionID).
			Str("action", entry.Action).
			Str("host", entry.Host).
			Str("status", entry.Status).
			Int64("bytes_in", entry.BytesIn).
			Int64("bytes_out", entry.BytesOut).
			Msg("session record")
		return nil
	}

	if err := w.store.PostAuditRecord(ctx, entry); err != nil {
		return fmt.Errorf("worker: deliver session record: %w", err)
	}
	return nil
}
