// Package audit records bridge session lifecycle events.
//
// Records are enqueued to Redis via asynq and delivered to the host store
// asynchronously by the worker — an audit failure must never break or slow
// down the session it describes.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"
)

// TaskSessionRecord is the asynq task type carrying one Entry.
const TaskSessionRecord = "session:record"

const (
	ActionConnect    = "bridge.connect"
	ActionDisconnect = "bridge.disconnect"

	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Entry holds all fields for a single session audit record.
type Entry struct {
	// SessionID is the bridge session identifier (transport connection id).
	SessionID string `json:"session_id"`
	// UserID identifies the authenticated console user.
	UserID string `json:"user_id"`
	// Action is ActionConnect or ActionDisconnect.
	Action string `json:"action"`
	// Host, Port, Username describe the SSH target. Credentials are never
	// recorded.
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	// Status is StatusSuccess or StatusFailed.
	Status string `json:"status"`
	// IP is the client's source IP address.
	IP string `json:"ip"`
	// StartedAt/EndedAt bound the session (EndedAt zero for connect records).
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at,omitempty"`
	// BytesIn/BytesOut count relayed payload bytes, client→shell and back.
	BytesIn  int64 `json:"bytes_in"`
	BytesOut int64 `json:"bytes_out"`
	// Detail holds optional structured context (error message, etc.).
	Detail map[string]any `json:"detail,omitempty"`
}

// Recorder accepts audit entries. Implementations must be non-blocking from
// the caller's perspective beyond a local enqueue.
type Recorder interface {
	Record(ctx context.Context, e Entry)
}

// NopRecorder discards all entries. Used when no Redis address is
// configured.
type NopRecorder struct{}

func (NopRecorder) Record(context.Context, Entry) {}

// AsynqRecorder enqueues entries as asynq tasks for the worker to deliver.
type AsynqRecorder struct {
	client *asynq.Client
}

// NewAsynqRecorder connects a recorder to the given Redis address.
func NewAsynqRecorder(redisAddr string) *AsynqRecorder {
	return &AsynqRecorder{
		client: asynq.NewClient(asynq.RedisClientOpt{Addr: redisAddr}),
	}
}

// Record enqueues the entry on the low-priority queue. Errors are logged
// and swallowed.
func (r *AsynqRecorder) Record(ctx context.Context, e Entry) {
	payload, err := json.Marshal(e)
	if err != nil {
		log.Error().Err(err).Str("session_id", e.SessionID).Msg("audit: marshal entry")
		return
	}
	task := asynq.NewTask(TaskSessionRecord, payload)
	if _, err := r.client.EnqueueContext(ctx, task, asynq.Queue("low"), asynq.MaxRetry(5)); err != nil {
		log.Error().Err(err).Str("session_id", e.SessionID).Msg("audit: enqueue entry")
	}
}

// Close releases the underlying Redis connection.
func (r *AsynqRecorder) Close() error {
	return r.client.Close()
}

var _ Recorder = NopRecorder{}
var _ Recorder = (*AsynqRecorder)(nil)
