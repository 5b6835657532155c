package cards

import (
	"errors"
	"fmt"
	"sync"
)

type CardID string

const (
	CardChart  CardID = "chart"
	CardStock  CardID = "stock"
	CardGemini CardID = "gemini"
	CardNews   CardID = "news"
	CardUpload CardID = "upload"
)

// DefaultOrder is the initial top-to-bottom card order.
var DefaultOrder = []CardID{CardChart, CardStock, CardGemini, CardNews, CardUpload}

var (
	ErrUnknownCard = errors.New("unknown card")
	ErrBadOrder    = errors.New("order must list every card exactly once")
)

// Grid is the user-arranged card order. It only changes through Move, MoveBy
// and SetOrder; nothing else reorders it.
type Grid struct {
	mu    sync.Mutex
	order []CardID
}

func NewGrid(order ...CardID) *Grid {
	if len(order) == 0 {
		order = DefaultOrder
	}
	return &Grid{order: append([]CardID(nil), order...)}
}

func (g *Grid) Order() []CardID {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]CardID(nil), g.order...)
}

// Move places id directly before target. An empty target moves id to the end.
func (g *Grid) Move(id, target CardID) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	from := g.indexLocked(id)
	if from < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownCard, id)
	}
	if target != "" && g.indexLocked(target) < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownCard, target)
	}
	if id == target {
		return nil
	}

	rest := make([]CardID, 0, len(g.order))
	for _, c := range g.order {
		if c != id {
			rest = append(rest, c)
		}
	}
	at := len(rest)
	for i, c := range rest {
		if c == target {
			at = i
			break
		}
	}
	out := make([]CardID, 0, len(g.order))
	out = append(out, rest[:at]...)
	out = append(out, id)
	out = append(out, rest[at:]...)
	g.order = out
	return nil
}

// MoveBy shifts id by delta positions, clamped to the grid bounds.
func (g *Grid) MoveBy(id CardID, delta int) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	from := g.indexLocked(id)
	if from < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownCard, id)
	}
	to := from + delta
	if to < 0 {
		to = 0
	}
	if to > len(g.order)-1 {
		to = len(g.order) - 1
	}
	if to == from {
		return nil
	}
	out := append([]CardID(nil), g.order...)
	c := out[from]
	if to < from {
		copy(out[to+1:from+1], out[to:from])
	} else {
		copy(out[from:to], out[from+1:to+1])
	}
	out[to] = c
	g.order = out
	return nil
}

// SetOrder replaces the order with a permutation of the current cards, as
// produced by a completed drag gesture.
func (g *Grid) SetOrder(order []CardID) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(order) != len(g.order) {
		return ErrBadOrder
	}
	seen := make(map[CardID]bool, len(order))
	for _, c := range order {
		if g.indexLocked(c) < 0 {
			return fmt.Errorf("%w: %s", ErrUnknownCard, c)
		}
		if seen[c] {
			return ErrBadOrder
		}
		seen[c] = true
	}
	g.order = append([]CardID(nil), order...)
	return nil
}

func (g *Grid) indexLocked(id CardID) int {
	for i, c := range g.order {
		if c == id {
			return i
		}
	}
	return -1
}
