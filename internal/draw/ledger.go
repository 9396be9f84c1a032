// Package draw records the numbers called during a game.
//
// The ledger is append-only and order-preserving: the sequence is the call
// order, which timing-sensitive prize rules and audits rely on. Appends
// serialize against each other to keep the no-duplicate invariant; reads
// never block appends already in flight.
package draw

import (
	"errors"
	"sync"
)

// Drawable numbers span 1..90.
const (
	Min = 1
	Max = 90
)

var (
	// ErrOutOfRange is returned for a number outside 1..90.
	ErrOutOfRange = errors.New("draw: number out of range 1..90")

	// ErrDuplicate is returned when a number has already been drawn.
	ErrDuplicate = errors.New("draw: number already drawn")
)

// Ledger is the append-only record of drawn numbers for one game.
// The zero value is ready to use.
type Ledger struct {
	mu    sync.RWMutex
	order []int
	seen  map[int]struct{}
}

// NewLedger creates a ledger pre-populated with an already-drawn sequence,
// e.g. when rehydrating a game from storage. Duplicates and out-of-range
// values in the seed are rejected.
func NewLedger(drawn []int) (*Ledger, error) {
	l := &Ledger{}
	for _, n := range drawn {
		if err := l.Append(n); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// Append records a number. Fails without side effects if the number is out
// of range or already present.
func (l *Ledger) Append(n int) error {
	if n < Min || n > Max {
		return ErrOutOfRange
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.seen == nil {
		l.seen = make(map[int]struct{})
	}
	if _, dup := l.seen[n]; dup {
		return ErrDuplicate
	}
	l.seen[n] = struct{}{}
	l.order = append(l.order, n)
	return nil
}

// Contains reports whether a number has been drawn.
func (l *Ledger) Contains(n int) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.seen[n]
	return ok
}

// Len returns the number of draws so far.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.order)
}

// Snapshot returns the drawn numbers in call order. The returned slice is
// a copy; callers may retain it.
func (l *Ledger) Snapshot() []int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]int, len(l.order))
	copy(out, l.order)
	return out
}
