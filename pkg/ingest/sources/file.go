// Package sources provides row sources over in-memory rows, CSV and XLSX content, and
// the openers that fetch that content from files, HTTP, S3 and stdin.
package sources

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/tabflow/tabflow/pkg/ingest/core"
)

// FileOpener opens a local file.
type FileOpener struct {
	path   string
	format core.Format
}

// NewFileOpener creates an opener for a local path.
func NewFileOpener(path string) *FileOpener {
	return &FileOpener{path: path, format: detectFormatFromPath(path)}
}

func (f *FileOpener) Location() string    { return f.path }
func (f *FileOpener) Format() core.Format { return f.format }

// Open returns a reader for the file.
func (f *FileOpener) Open(ctx context.Context) (io.ReadCloser, error) {
	return os.Open(f.path)
}

// detectFormatFromPath guesses format from file extension.
func detectFormatFromPath(path string) core.Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return core.FormatCSV
	case ".tsv", ".tab":
		return core.FormatTSV
	case ".xlsx", ".xlsm":
		return core.FormatXLSX
	default:
		return core.FormatUnknown
	}
}

// StdinOpener buffers standard input on first use so that every traversal can
// restart from the beginning.
type StdinOpener struct {
	format core.Format
	reader io.Reader

	once sync.Once
	data []byte
	err  error
}

// Stdin creates an opener over standard input with a declared format.
func Stdin(format core.Format) *StdinOpener {
	return &StdinOpener{format: format, reader: os.Stdin}
}

// NewReaderOpener buffers r the same way Stdin does.
func NewReaderOpener(r io.Reader, format core.Format) *StdinOpener {
	return &StdinOpener{format: format, reader: r}
}

func (s *StdinOpener) Location() string    { return "-" }
func (s *StdinOpener) Format() core.Format { return s.format }

// Open returns a reader over the buffered content.
func (s *StdinOpener) Open(ctx context.Context) (io.ReadCloser, error) {
	s.once.Do(func() {
		s.data, s.err = io.ReadAll(s.reader)
	})
	if s.err != nil {
		return nil, s.err
	}
	return io.NopCloser(bytes.NewReader(s.data)), nil
}

var (
	_ core.Opener = (*FileOpener)(nil)
	_ core.Opener = (*StdinOpener)(nil)
)
