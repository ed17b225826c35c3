package processors

import (
	"iter"
	"math/rand"
	"slices"

	"github.com/tabflow/tabflow/pkg/table"
)

// Sample keeps each row with probability rate (Bernoulli sampling). The generator is
// reseeded on every traversal, so a restarted read selects the same rows.
func Sample(rate float64, seed int64) table.Processor {
	if rate < 0 {
		rate = 0
	}
	if rate > 1 {
		rate = 1
	}
	return func(rows iter.Seq[table.ExtendedRow]) iter.Seq[table.ExtendedRow] {
		return func(yield func(table.ExtendedRow) bool) {
			rng := rand.New(rand.NewSource(seed))
			for row := range rows {
				if rng.Float64() >= rate {
					continue
				}
				if !yield(row) {
					return
				}
			}
		}
	}
}

// Reservoir keeps a uniform sample of k rows (Algorithm R). The sample is buffered until
// the stream ends and emitted in original row order.
func Reservoir(k int, seed int64) table.Processor {
	return func(rows iter.Seq[table.ExtendedRow]) iter.Seq[table.ExtendedRow] {
		return func(yield func(table.ExtendedRow) bool) {
			if k <= 0 {
				return
			}
			rng := rand.New(rand.NewSource(seed))
			reservoir := make([]table.ExtendedRow, 0, k)
			n := 0
			for row := range rows {
				n++
				if n <= k {
					// Fill reservoir first
					reservoir = append(reservoir, copyRow(row))
					continue
				}
				// Replace with probability k/n
				if j := rng.Intn(n); j < k {
					reservoir[j] = copyRow(row)
				}
			}

			slices.SortFunc(reservoir, func(a, b table.ExtendedRow) int { return a.Number - b.Number })
			for _, row := range reservoir {
				if !yield(row) {
					return
				}
			}
		}
	}
}

// Skip drops the first n rows.
func Skip(n int) table.Processor {
	return func(rows iter.Seq[table.ExtendedRow]) iter.Seq[table.ExtendedRow] {
		return func(yield func(table.ExtendedRow) bool) {
			seen := 0
			for row := range rows {
				seen++
				if seen <= n {
					continue
				}
				if !yield(row) {
					return
				}
			}
		}
	}
}

// Head keeps the first n rows and stops pulling from upstream afterwards.
func Head(n int) table.Processor {
	return func(rows iter.Seq[table.ExtendedRow]) iter.Seq[table.ExtendedRow] {
		return func(yield func(table.ExtendedRow) bool) {
			if n <= 0 {
				return
			}
			emitted := 0
			for row := range rows {
				if !yield(row) {
					return
				}
				emitted++
				if emitted >= n {
					return
				}
			}
		}
	}
}

func copyRow(r table.ExtendedRow) table.ExtendedRow {
	return table.ExtendedRow{
		Number:  r.Number,
		Headers: r.Headers,
		Values:  slices.Clone(r.Values),
	}
}
