package alert

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// FailedTransition is a state mutation that exhausted its retries. It sits
// in the operator queue until a human intervenes; the engine never silently
// drops a life-safety transition.
type FailedTransition struct {
	AlertID  uuid.UUID `json:"alert_id"`
	Command  string    `json:"command"`
	Error    string    `json:"error"`
	Attempts int       `json:"attempts"`
	FailedAt time.Time `json:"failed_at"`
}

// OperatorQueue is a bounded in-memory ring of failed transitions exposed
// to operations staff. When full, the oldest entry is evicted and the
// eviction itself is logged at error level.
type OperatorQueue struct {
	mu      sync.Mutex
	entries []FailedTransition
	max     int
	log     zerolog.Logger
}

func NewOperatorQueue(max int, log zerolog.Logger) *OperatorQueue {
	if max <= 0 {
		max = 256
	}
	return &OperatorQueue{max: max, log: log}
}

// Push records a failed transition and logs it loudly.
func (q *OperatorQueue) Push(ft FailedTransition) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.log.Error().
		Str("alert_id", ft.AlertID.String()).
		Str("command", ft.Command).
		Int("attempts", ft.Attempts).
		Str("error", ft.Error).
		Msg("state transition failed after retries; queued for operator")

	if len(q.entries) >= q.max {
		evicted := q.entries[0]
		q.entries = q.entries[1:]
		q.log.Error().
			Str("alert_id", evicted.AlertID.String()).
			Str("command", evicted.Command).
			Msg("operator queue full; evicted oldest failed transition")
	}
	q.entries = append(q.entries, ft)
}

// Snapshot returns a copy of the queued transitions, oldest first.
func (q *OperatorQueue) Snapshot() []FailedTransition {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]FailedTransition, len(q.entries))
	copy(out, q.entries)
	return out
}

// Len returns the number of queued transitions.
func (q *OperatorQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}
