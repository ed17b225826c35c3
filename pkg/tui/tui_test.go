package tui

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	tferrors "github.com/tabflow/tabflow/pkg/errors"
)

func TestPrintResults(t *testing.T) {
	results := []Result{
		{Location: "a.csv", Rows: 10, Duration: 20 * time.Millisecond},
		{Location: "b.csv", Rows: 3, Err: tferrors.New(tferrors.CodeDuplicate, "row 4 duplicates row 1")},
	}

	var buf bytes.Buffer
	s := PrintResults(&buf, results)
	assert.Equal(t, Summary{Valid: 1, Invalid: 1, Rows: 13}, s)

	out := buf.String()
	assert.Contains(t, out, "a.csv")
	assert.Contains(t, out, "row 4 duplicates row 1")
	assert.Contains(t, out, "INVALID")
	assert.NotContains(t, out, "[E203]")
}

func TestPrintResults_AllValid(t *testing.T) {
	var buf bytes.Buffer
	s := PrintResults(&buf, []Result{{Location: "a.csv", Rows: 1500}})
	assert.Equal(t, 0, s.Invalid)
	assert.Contains(t, buf.String(), "VALID")
	assert.Contains(t, buf.String(), "1.5K")
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "999", FormatNumber(999))
	assert.Equal(t, "2.5M", FormatNumber(2500000))
	assert.Equal(t, "250ms", FormatDuration(250*time.Millisecond))
	assert.Equal(t, "1.5s", FormatDuration(1500*time.Millisecond))
	assert.Equal(t, "2m5s", FormatDuration(125*time.Second))
}
