package sources

import (
	"bufio"
	"errors"
	"io"
	"math"
)

// sniffSize is how much of the input SniffDelimiter looks at.
const sniffSize = 64 * 1024

var delimiterCandidates = []rune{',', '\t', ';', '|'}

// SniffDelimiter picks the candidate delimiter whose per-line count is most consistent
// relative to its mean. Samples with fewer than two complete lines yield ','.
func SniffDelimiter(sample []byte) rune {
	best := ','
	bestScore := math.MaxFloat64

	for _, delim := range delimiterCandidates {
		counts := countPerLine(sample, byte(delim))
		if len(counts) < 2 {
			continue
		}
		avg := mean(counts)
		if avg < 1 {
			continue
		}
		if score := variance(counts, avg) / avg; score < bestScore {
			bestScore = score
			best = delim
		}
	}
	return best
}

// sniffReader buffers r and detects its delimiter without consuming input.
func sniffReader(r io.Reader) (io.Reader, rune, error) {
	br := bufio.NewReaderSize(r, sniffSize)
	sample, err := br.Peek(sniffSize)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return nil, 0, err
	}
	return br, SniffDelimiter(sample), nil
}

func countPerLine(sample []byte, delim byte) []int {
	var counts []int
	inQuote := false
	count := 0
	for _, b := range sample {
		if b == '"' {
			inQuote = !inQuote
			continue
		}
		if inQuote {
			continue
		}
		switch b {
		case delim:
			count++
		case '\n':
			counts = append(counts, count)
			count = 0
		}
	}
	return counts
}

func mean(values []int) float64 {
	sum := 0
	for _, v := range values {
		sum += v
	}
	return float64(sum) / float64(len(values))
}

func variance(values []int, m float64) float64 {
	sum := 0.0
	for _, v := range values {
		d := float64(v) - m
		sum += d * d
	}
	return sum / float64(len(values))
}
