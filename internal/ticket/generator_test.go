package ticket

import (
	"testing"

	"github.com/tambola/game-engine/internal/model"
)

func TestGenerate_StructuralInvariants(t *testing.T) {
	g := NewSeededGenerator(1)

	for i := 0; i < 1000; i++ {
		numbers := g.Generate()
		if !Valid(numbers) {
			t.Fatalf("generated invalid ticket on iteration %d: %v", i, numbers)
		}
	}
}

func TestGenerate_FifteenDistinctNumbers(t *testing.T) {
	g := NewSeededGenerator(42)

	numbers := g.Generate()
	seen := make(map[int]struct{})
	for _, n := range numbers.All() {
		if _, dup := seen[n]; dup {
			t.Fatalf("duplicate number %d in ticket %v", n, numbers)
		}
		seen[n] = struct{}{}
	}
	if len(seen) != 15 {
		t.Fatalf("expected 15 distinct numbers, got %d", len(seen))
	}
}

func TestGenerate_RowsSortedAscending(t *testing.T) {
	g := NewSeededGenerator(7)

	for i := 0; i < 100; i++ {
		numbers := g.Generate()
		for r := 0; r < 3; r++ {
			row := numbers.Row(r)
			for j := 1; j < len(row); j++ {
				if row[j] <= row[j-1] {
					t.Fatalf("row %d not strictly ascending: %v", r, row)
				}
			}
		}
	}
}

func TestGenerate_NumbersMatchDecadeColumns(t *testing.T) {
	g := NewSeededGenerator(99)

	for i := 0; i < 100; i++ {
		numbers := g.Generate()
		for _, n := range numbers.All() {
			if n < 1 || n > 89 {
				t.Fatalf("number %d outside 1..89", n)
			}
		}
		// At most one number per decade column within a row.
		for r := 0; r < 3; r++ {
			cols := make(map[int]struct{})
			for _, n := range numbers.Row(r) {
				col := n / 10
				if _, dup := cols[col]; dup {
					t.Fatalf("row %d uses column %d twice: %v", r, col, numbers.Row(r))
				}
				cols[col] = struct{}{}
			}
		}
	}
}

func TestGenerateTracked_AlwaysValid(t *testing.T) {
	// The deterministic fallback must produce valid grids on its own.
	g := NewSeededGenerator(3)

	for i := 0; i < 500; i++ {
		numbers := g.generateTracked()
		if !Valid(numbers) {
			t.Fatalf("fallback produced invalid ticket: %v", numbers)
		}
	}
}

func TestValid_RejectsMalformedGrids(t *testing.T) {
	cases := []struct {
		name    string
		numbers model.TicketNumbers
	}{
		{
			name: "duplicate across rows",
			numbers: model.TicketNumbers{
				{2, 13, 24, 35, 46},
				{2, 17, 28, 39, 51},
				{5, 19, 33, 47, 61},
			},
		},
		{
			name: "row not sorted",
			numbers: model.TicketNumbers{
				{13, 2, 24, 35, 46},
				{4, 17, 28, 39, 51},
				{5, 19, 33, 47, 61},
			},
		},
		{
			name: "number out of range",
			numbers: model.TicketNumbers{
				{2, 13, 24, 35, 90},
				{4, 17, 28, 39, 51},
				{5, 19, 33, 47, 61},
			},
		},
		{
			name: "two numbers from one column in a row",
			numbers: model.TicketNumbers{
				{2, 13, 15, 35, 46},
				{4, 17, 28, 39, 51},
				{5, 19, 33, 47, 61},
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if Valid(tc.numbers) {
				t.Errorf("expected grid to be rejected: %v", tc.numbers)
			}
		})
	}
}

func TestGenerate_Deterministic(t *testing.T) {
	a := NewSeededGenerator(123).Generate()
	b := NewSeededGenerator(123).Generate()
	if a != b {
		t.Errorf("same seed produced different tickets:\n%v\n%v", a, b)
	}
}
