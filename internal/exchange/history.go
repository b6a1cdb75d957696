package exchange

import (
	"fmt"
	"time"

	"github.com/adamdenes/simtrade/internal/models"
)

// history is one bounded, time-windowed sequence of settled orders, newest
// at the tail. The exchange keeps one global instance plus one per symbol.
type history struct {
	maxLen  int
	window  time.Duration
	entries []*models.Order
}

func newHistory(maxLen int, window time.Duration) *history {
	return &history{
		maxLen:  maxLen,
		window:  window,
		entries: make([]*models.Order, 0, maxLen),
	}
}

// insert appends o and evicts from the head: first while over the count
// cap, then entries older than the window anchored at o's timestamp.
// Records without a usable id are rejected, never silently dropped; a
// corrupt id would break the pagination ordering.
func (h *history) insert(o *models.Order) error {
	if o == nil {
		return fmt.Errorf("refusing to record nil order")
	}
	if o.ID == 0 {
		return fmt.Errorf("refusing to record order with zero id (%+v)", o)
	}

	h.entries = append(h.entries, o)

	for len(h.entries) > h.maxLen {
		h.entries = h.entries[1:]
	}

	if h.window <= 0 || o.UpdatedAt <= 0 {
		return nil
	}
	cutoff := o.UpdatedAt - h.window.Milliseconds()
	for len(h.entries) > 0 {
		head := h.entries[0]
		// A head entry without a usable timestamp is only ever evicted
		// by the count cap.
		if head.UpdatedAt <= 0 || head.UpdatedAt >= cutoff {
			break
		}
		h.entries = h.entries[1:]
	}

	return nil
}

// page returns up to limit entries with id >= fromID, oldest first.
func (h *history) page(fromID int64, limit int) []*models.Order {
	if limit <= 0 {
		return nil
	}
	// The limit is caller-supplied; never allocate from it directly.
	size := limit
	if size > len(h.entries) {
		size = len(h.entries)
	}
	out := make([]*models.Order, 0, size)
	for _, o := range h.entries {
		if o.ID < fromID {
			continue
		}
		out = append(out, o)
		if len(out) == limit {
			break
		}
	}
	return out
}

func (h *history) len() int {
	return len(h.entries)
}
