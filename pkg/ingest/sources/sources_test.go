package sources

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	tferrors "github.com/tabflow/tabflow/pkg/errors"
	"github.com/tabflow/tabflow/pkg/ingest/core"
)

func collect(t *testing.T, src core.RowSource) [][]any {
	t.Helper()
	var rows [][]any
	for row, err := range src.Rows(context.Background()) {
		require.NoError(t, err)
		rows = append(rows, row)
	}
	return rows
}

func TestMemory(t *testing.T) {
	src := Memory(Strings(
		[]string{"id", "name"},
		[]string{"1", "english"},
		[]string{"2", "中国人"},
	))

	headers, err := src.Headers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name"}, headers)

	rows := collect(t, src)
	assert.Equal(t, [][]any{{"1", "english"}, {"2", "中国人"}}, rows)

	// Rows are copies.
	rows[0][0] = "changed"
	assert.Equal(t, "1", collect(t, src)[0][0])
}

func TestMemory_Empty(t *testing.T) {
	src := Memory(nil)
	headers, err := src.Headers(context.Background())
	require.NoError(t, err)
	assert.Empty(t, headers)
	assert.Empty(t, collect(t, src))
}

func TestCSV(t *testing.T) {
	opener := NewReaderOpener(strings.NewReader("id,name\n1,english\n2,\"a, b\"\n"), core.FormatCSV)
	src := CSV(opener, CSVOptions{})

	headers, err := src.Headers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name"}, headers)

	assert.Equal(t, [][]any{{"1", "english"}, {"2", "a, b"}}, collect(t, src))
	// Traversals restart from the beginning.
	assert.Len(t, collect(t, src), 2)
}

func TestCSV_RaggedAndEmpty(t *testing.T) {
	src := CSV(NewReaderOpener(strings.NewReader("a,b\n1\n1,2,3\n"), core.FormatCSV), CSVOptions{})
	assert.Equal(t, [][]any{{"1"}, {"1", "2", "3"}}, collect(t, src))

	empty := CSV(NewReaderOpener(strings.NewReader(""), core.FormatCSV), CSVOptions{})
	headers, err := empty.Headers(context.Background())
	require.NoError(t, err)
	assert.Nil(t, headers)
	assert.Empty(t, collect(t, empty))
}

func TestCSV_TSVFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.tsv")
	require.NoError(t, os.WriteFile(path, []byte("id\tname\n1\tenglish\n"), 0o644))

	src := CSV(NewFileOpener(path), CSVOptions{})
	assert.Equal(t, [][]any{{"1", "english"}}, collect(t, src))
}

func TestCSV_MissingFile(t *testing.T) {
	src := CSV(NewFileOpener(filepath.Join(t.TempDir(), "missing.csv")), CSVOptions{})
	_, err := src.Headers(context.Background())
	require.Error(t, err)
	assert.True(t, tferrors.IsCode(err, tferrors.CodeSource))
}

func TestSniffDelimiter(t *testing.T) {
	tests := []struct {
		name   string
		sample string
		want   rune
	}{
		{"comma", "a,b,c\n1,2,3\n4,5,6\n", ','},
		{"semicolon", "a;b;c\n1,5;2;3\n4;5,5;6\n", ';'},
		{"tab", "a\tb\n1\t2\n", '\t'},
		{"pipe", "a|b|c\n1|2|3\n", '|'},
		{"quoted delimiters ignored", "a;b\n\"x,y,z\";1\n\"p,q\";2\n", ';'},
		{"single line", "a;b;c", ','},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SniffDelimiter([]byte(tt.sample)))
		})
	}
}

func TestCSV_Sniff(t *testing.T) {
	opener := NewReaderOpener(strings.NewReader("id;name\n1;a\n2;b\n"), core.FormatCSV)
	src := CSV(opener, CSVOptions{Sniff: true})

	headers, err := src.Headers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name"}, headers)
	assert.Equal(t, [][]any{{"1", "a"}, {"2", "b"}}, collect(t, src))

	// An explicit delimiter wins over sniffing.
	src = CSV(opener, CSVOptions{Sniff: true, Delimiter: ','})
	assert.Equal(t, [][]any{{"1;a"}, {"2;b"}}, collect(t, src))
}

func TestXLSX(t *testing.T) {
	f := excelize.NewFile()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]any{"id", "name", "note"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]any{1, "english"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A4", &[]any{2, "中国人", "x"}))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	src := XLSX(NewReaderOpener(buf, core.FormatXLSX), "")
	headers, err := src.Headers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name", "note"}, headers)

	assert.Equal(t, [][]any{
		{"1", "english", ""},
		{"2", "中国人", "x"},
	}, collect(t, src))
}

func TestXLSX_UnknownSheet(t *testing.T) {
	buf, err := excelize.NewFile().WriteToBuffer()
	require.NoError(t, err)

	src := XLSX(NewReaderOpener(buf, core.FormatXLSX), "nope")
	_, err = src.Headers(context.Background())
	require.Error(t, err)
}

func TestHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		_, _ = w.Write([]byte("id,name\n1,english\n"))
	}))
	defer srv.Close()

	src, err := Open(context.Background(), srv.URL+"/table.csv", OpenOptions{
		HTTP: &HTTPOptions{BearerToken: "secret"},
	})
	require.NoError(t, err)
	assert.Equal(t, [][]any{{"1", "english"}}, collect(t, src))

	denied, err := Open(context.Background(), srv.URL+"/table.csv", OpenOptions{})
	require.NoError(t, err)
	_, err = denied.Headers(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestIsRemote(t *testing.T) {
	for _, loc := range []string{"http://x/a.csv", "https://x/a.csv", "ftp://x/a.csv", "ftps://x/a.csv", "s3://bucket/a.csv"} {
		assert.True(t, IsRemote(loc), loc)
	}
	for _, loc := range []string{"a.csv", "/tmp/a.csv", "-", "file.xlsx"} {
		assert.False(t, IsRemote(loc), loc)
	}
}

func TestOpen_Unsupported(t *testing.T) {
	_, err := Open(context.Background(), "ftp://example.com/a.csv", OpenOptions{})
	require.Error(t, err)
	assert.True(t, tferrors.IsCode(err, tferrors.CodeSource))

	_, err = Open(context.Background(), "s3://bucket/a.csv", OpenOptions{})
	require.Error(t, err)
}

func TestExpand(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.csv", "a.csv", "c.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x\n"), 0o644))
	}

	paths, err := Expand([]string{filepath.Join(dir, "*.csv"), "https://x/y.csv", "-"})
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.csv"),
		filepath.Join(dir, "b.csv"),
		"https://x/y.csv",
		"-",
	}, paths)

	_, err = Expand([]string{filepath.Join(dir, "*.json")})
	require.Error(t, err)
}
