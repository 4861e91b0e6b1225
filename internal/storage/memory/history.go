package memory

import (
	"context"
	"github.com/ilindan-dev/dispatch-scheduler/internal/domain/model"
	repo "github.com/ilindan-dev/dispatch-scheduler/internal/domain/repository"
	"sync"
)

const defaultHistoryCapacity = 1000

// History is a bounded in-memory OutcomeLog. When full, the oldest entry is dropped.
type History struct {
	mu      sync.RWMutex
	entries []model.HistoryEntry
	next    int
	count   int
	seq     int64
}

var _ repo.OutcomeLog = (*History)(nil)

func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = defaultHistoryCapacity
	}
	return &History{entries: make([]model.HistoryEntry, capacity)}
}

// Record implements repo.OutcomeLog.
func (h *History) Record(_ context.Context, entry model.HistoryEntry) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.seq++
	entry.ID = h.seq
	h.entries[h.next] = entry
	h.next = (h.next + 1) % len(h.entries)
	if h.count < len(h.entries) {
		h.count++
	}
	return nil
}

// Recent implements repo.OutcomeLog.
func (h *History) Recent(_ context.Context, limit int) ([]model.HistoryEntry, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if limit <= 0 || limit > h.count {
		limit = h.count
	}

	out := make([]model.HistoryEntry, 0, limit)
	idx := h.next
	for i := 0; i < limit; i++ {
		idx = (idx - 1 + len(h.entries)) % len(h.entries)
		out = append(out, h.entries[idx])
	}
	return out, nil
}

// Discard is an OutcomeLog that keeps nothing.
type Discard struct{}

var _ repo.OutcomeLog = Discard{}

func (Discard) Record(context.Context, model.HistoryEntry) error { return nil }

func (Discard) Recent(context.Context, int) ([]model.HistoryEntry, error) {
	return []model.HistoryEntry{}, nil
}
