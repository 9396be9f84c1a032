// Package ticket generates structurally valid tambola tickets.
//
// A ticket is a 3×5 grid: each row holds five distinct decade columns out
// of nine, one number per selected column, sorted ascending. The nine
// columns cover 1–9, 10–19, ..., 80–89 (the first column is one number
// narrower). Across the whole grid the 15 numbers must be pairwise
// distinct.
//
// Generation is a pure function of a random source, with no persisted
// state. Rows are drawn independently, so the flattened grid can collide
// across rows; a collision discards the whole ticket. Retries are bounded:
// after maxAttempts rejected grids the generator switches to a
// deterministic completion that tracks used numbers per column, which
// always terminates because a column is picked by at most three rows and
// holds at least nine numbers.
package ticket

import (
	"math/rand"
	"sort"

	"github.com/tambola/game-engine/internal/model"
)

const (
	columns     = 9
	rowSize     = 5
	rows        = 3
	numberMin   = 1
	numberMax   = 89 // grids top out at 89; no decade column reaches 90
	maxAttempts = 16
)

// Generator produces ticket grids from a random source.
type Generator struct {
	intN func(int) int
}

// NewGenerator creates a generator backed by the shared, goroutine-safe
// package source in math/rand.
func NewGenerator() *Generator {
	return &Generator{intN: rand.Intn}
}

// NewSeededGenerator creates a deterministic generator for tests. Not safe
// for concurrent use.
func NewSeededGenerator(seed uint64) *Generator {
	r := rand.New(rand.NewSource(int64(seed)))
	return &Generator{intN: r.Intn}
}

// Generate produces one valid ticket grid.
func (g *Generator) Generate() model.TicketNumbers {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		numbers, ok := g.generateOnce()
		if ok {
			return numbers
		}
	}
	return g.generateTracked()
}

// columnRange returns the inclusive bounds of a decade column. Column 0 is
// 1–9; column c (c ≥ 1) is c·10 – c·10+9.
func columnRange(col int) (min, max int) {
	if col == 0 {
		return 1, 9
	}
	return col * 10, col*10 + 9
}

// pickColumns selects k distinct columns uniformly without replacement.
func (g *Generator) pickColumns(k int) []int {
	perm := make([]int, columns)
	for i := range perm {
		perm[i] = i
	}
	for i := 0; i < k; i++ {
		j := i + g.intN(columns-i)
		perm[i], perm[j] = perm[j], perm[i]
	}
	return perm[:k]
}

// generateOnce builds a candidate grid row by row and reports whether the
// flattened 15 numbers are distinct.
func (g *Generator) generateOnce() (model.TicketNumbers, bool) {
	var numbers model.TicketNumbers
	seen := make(map[int]struct{}, rows*rowSize)

	for r := 0; r < rows; r++ {
		row := make([]int, 0, rowSize)
		for _, col := range g.pickColumns(rowSize) {
			min, max := columnRange(col)
			row = append(row, min+g.intN(max-min+1))
		}
		sort.Ints(row)
		copy(numbers[r][:], row)
	}

	for _, n := range numbers.All() {
		if _, dup := seen[n]; dup {
			return numbers, false
		}
		seen[n] = struct{}{}
	}
	return numbers, true
}

// generateTracked is the deterministic fallback: it draws each number from
// the unused remainder of its column, so the grid is collision-free by
// construction.
func (g *Generator) generateTracked() model.TicketNumbers {
	var numbers model.TicketNumbers
	used := make(map[int]struct{}, rows*rowSize)

	for r := 0; r < rows; r++ {
		row := make([]int, 0, rowSize)
		for _, col := range g.pickColumns(rowSize) {
			min, max := columnRange(col)
			free := make([]int, 0, max-min+1)
			for n := min; n <= max; n++ {
				if _, taken := used[n]; !taken {
					free = append(free, n)
				}
			}
			n := free[g.intN(len(free))]
			used[n] = struct{}{}
			row = append(row, n)
		}
		sort.Ints(row)
		copy(numbers[r][:], row)
	}
	return numbers
}

// Valid reports whether a grid satisfies the structural invariants: 15
// distinct numbers, rows sorted ascending, every number inside the decade
// range of some column with at most one number per (row, column).
func Valid(numbers model.TicketNumbers) bool {
	seen := make(map[int]struct{}, rows*rowSize)
	for r := 0; r < rows; r++ {
		cols := make(map[int]struct{}, rowSize)
		prev := 0
		for _, n := range numbers[r] {
			if n < numberMin || n > numberMax {
				return false
			}
			if n <= prev {
				return false
			}
			prev = n
			col := n / 10
			if _, dup := cols[col]; dup {
				return false
			}
			cols[col] = struct{}{}
			if _, dup := seen[n]; dup {
				return false
			}
			seen[n] = struct{}{}
		}
	}
	return true
}
