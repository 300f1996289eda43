package render

import (
	gosync "sync"

	"github.com/beekhof/mirror-agenda/internal/sync"
)

// Board keeps the most recently rendered display for readers such as the
// HTTP API. The last Render to complete wins.
type Board struct {
	mu      gosync.RWMutex
	current sync.Display
	ok      bool
}

func NewBoard() *Board {
	return &Board{}
}

func (b *Board) Render(d sync.Display) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current = d
	b.ok = true
}

// Current returns the latest display and whether anything was rendered yet.
func (b *Board) Current() (sync.Display, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.current, b.ok
}
