package sources

import (
	"path/filepath"
	"sort"
	"strings"

	tferrors "github.com/tabflow/tabflow/pkg/errors"
)

// Expand resolves local glob patterns to sorted file paths. Remote locations, stdin and
// paths without glob characters are passed through unchanged.
func Expand(patterns []string) ([]string, error) {
	var out []string
	for _, pattern := range patterns {
		if pattern == "-" || IsRemote(pattern) || !strings.ContainsAny(pattern, "*?[") {
			out = append(out, pattern)
			continue
		}

		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, tferrors.Wrap(err, tferrors.CodeSource, "invalid glob pattern").WithContext("pattern", pattern)
		}
		if len(matches) == 0 {
			return nil, tferrors.New(tferrors.CodeSource, "no files match pattern").WithContext("pattern", pattern)
		}

		// Sort for deterministic ordering
		sort.Strings(matches)
		out = append(out, matches...)
	}
	return out, nil
}
