package sources

import (
	"context"
	"net/url"
	"strings"

	tferrors "github.com/tabflow/tabflow/pkg/errors"
	"github.com/tabflow/tabflow/pkg/ingest/core"
	s3store "github.com/tabflow/tabflow/pkg/storage/s3"
)

// RemoteSchemes are the URL schemes treated as remote locations.
var RemoteSchemes = []string{"http", "https", "ftp", "ftps", "s3"}

// IsRemote reports whether location is a URL with a remote scheme.
func IsRemote(location string) bool {
	return remoteScheme(location) != ""
}

func remoteScheme(location string) string {
	u, err := url.Parse(location)
	if err != nil {
		return ""
	}
	scheme := strings.ToLower(u.Scheme)
	for _, s := range RemoteSchemes {
		if scheme == s {
			return scheme
		}
	}
	return ""
}

// OpenOptions configures Open.
type OpenOptions struct {
	// Format overrides detection by extension or content type.
	Format core.Format
	// CSV configures CSV and TSV parsing.
	CSV CSVOptions
	// Sheet selects the XLSX sheet; empty selects the first.
	Sheet string
	// HTTP configures http and https locations.
	HTTP *HTTPOptions
	// S3 serves s3 locations; NewS3 is used when nil.
	S3 *s3store.Client
	// NewS3 lazily creates an S3 client.
	NewS3 func(ctx context.Context) (*s3store.Client, error)
}

// Opener picks the opener for a location: "-" is stdin, http(s) and s3 URLs are
// fetched remotely, everything else is a local path.
func Opener(ctx context.Context, location string, opts OpenOptions) (core.Opener, error) {
	if location == "-" {
		format := opts.Format
		if format == core.FormatUnknown {
			format = core.FormatCSV
		}
		return Stdin(format), nil
	}

	switch remoteScheme(location) {
	case "":
		return NewFileOpener(location), nil
	case "http", "https":
		o, err := NewHTTPOpener(location, opts.HTTP)
		if err != nil {
			return nil, err
		}
		return o, nil
	case "s3":
		bucket, key, err := s3store.ParseURL(location)
		if err != nil {
			return nil, err
		}
		client := opts.S3
		if client == nil {
			if opts.NewS3 == nil {
				return nil, tferrors.New(tferrors.CodeSource, "no S3 client configured").WithContext("location", location)
			}
			if client, err = opts.NewS3(ctx); err != nil {
				return nil, err
			}
		}
		return NewS3Opener(client, bucket, key), nil
	default:
		return nil, tferrors.New(tferrors.CodeSource, "unsupported remote scheme").WithContext("location", location)
	}
}

// Open returns the row source for a location, decoding by format.
func Open(ctx context.Context, location string, opts OpenOptions) (core.RowSource, error) {
	opener, err := Opener(ctx, location, opts)
	if err != nil {
		return nil, err
	}

	format := opts.Format
	if format == core.FormatUnknown {
		format = opener.Format()
	}
	switch format {
	case core.FormatXLSX:
		return XLSX(opener, opts.Sheet), nil
	case core.FormatTSV:
		csvOpts := opts.CSV
		if csvOpts.Delimiter == 0 {
			csvOpts.Delimiter = '\t'
		}
		return CSV(opener, csvOpts), nil
	default:
		// Unknown extensions are read as CSV.
		return CSV(opener, opts.CSV), nil
	}
}
