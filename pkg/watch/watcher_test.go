package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tferrors "github.com/tabflow/tabflow/pkg/errors"
)

func TestWatch_MissingFile(t *testing.T) {
	w, err := New()
	require.NoError(t, err)
	defer w.Close()

	err = w.Watch(filepath.Join(t.TempDir(), "missing.csv"))
	require.Error(t, err)
	assert.True(t, tferrors.IsCode(err, tferrors.CodeSource))
}

func TestRun_CallsOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.csv")
	require.NoError(t, os.WriteFile(path, []byte("id\n1\n"), 0o644))

	w, err := New(WithDebounce(20 * time.Millisecond))
	require.NoError(t, err)
	require.NoError(t, w.Watch(path))
	assert.Len(t, w.Files(), 1)

	var calls atomic.Int32
	w.OnChange = func(ctx context.Context, p string) error {
		calls.Add(1)
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool {
		_ = os.WriteFile(path, []byte("id\n1\n2\n3\n"), 0o644)
		return calls.Load() > 0
	}, 5*time.Second, 100*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
