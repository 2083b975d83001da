package timeline

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemoryRepo is an in-memory Repository used by tests across the engine
// and by ephemeral dev setups. Append order supplies the seq tie-break,
// matching the Postgres BIGSERIAL behavior.
type MemoryRepo struct {
	mu     sync.RWMutex
	events []*Event
	seq    int64
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{}
}

func (r *MemoryRepo) Append(_ context.Context, e *Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	e.ID = uuid.New()
	e.Seq = r.seq
	cp := *e
	r.events = append(r.events, &cp)
	return nil
}

func (r *MemoryRepo) ListByAlert(_ context.Context, alertID uuid.UUID) ([]*Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Event
	for _, e := range r.events {
		if e.AlertID == alertID {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].EventTime.Equal(out[j].EventTime) {
			return out[i].Seq < out[j].Seq
		}
		return out[i].EventTime.Before(out[j].EventTime)
	})
	return out, nil
}

func (r *MemoryRepo) ListRecent(_ context.Context, eventType string, limit, offset int) ([]*Event, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var all []*Event
	for _, e := range r.events {
		if eventType == "" || string(e.EventType) == eventType {
			cp := *e
			all = append(all, &cp)
		}
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].EventTime.Equal(all[j].EventTime) {
			return all[i].Seq > all[j].Seq
		}
		return all[i].EventTime.After(all[j].EventTime)
	})
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}
