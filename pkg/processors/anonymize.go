package processors

import (
	"crypto/sha256"
	"encoding/hex"
	"iter"
	"slices"
	"strconv"
	"sync"

	"github.com/tabflow/tabflow/pkg/table"
	"github.com/tabflow/tabflow/pkg/types"
)

// Anonymizer hashes the values of selected fields with a salted SHA-256.
type Anonymizer struct {
	fields map[string]bool
	salt   []byte
	cache  map[string]string // Cache for repeated values
	mu     sync.RWMutex
}

// NewAnonymizer creates an anonymizer for the named fields.
func NewAnonymizer(fields []string, salt string) *Anonymizer {
	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		set[f] = true
	}
	return &Anonymizer{
		fields: set,
		salt:   []byte(salt),
		cache:  make(map[string]string),
	}
}

// Anonymize returns a processor replacing the values of fields with their salted hash.
// Missing and empty values are kept.
func Anonymize(fields []string, salt string) table.Processor {
	return NewAnonymizer(fields, salt).Processor()
}

// Processor returns the anonymizer as a stream transformer.
func (a *Anonymizer) Processor() table.Processor {
	return func(rows iter.Seq[table.ExtendedRow]) iter.Seq[table.ExtendedRow] {
		return func(yield func(table.ExtendedRow) bool) {
			for row := range rows {
				if !yield(a.apply(row)) {
					return
				}
			}
		}
	}
}

func (a *Anonymizer) apply(row table.ExtendedRow) table.ExtendedRow {
	values := slices.Clone(row.Values)
	for i, h := range row.Headers {
		if !a.fields[h] || i >= len(values) || values[i] == nil {
			continue
		}
		if s := text(values[i]); s != "" {
			values[i] = a.Hash(s)
		}
	}
	row.Values = values
	return row
}

// Hash computes the salted SHA-256 of value, truncated to 16 hex characters.
func (a *Anonymizer) Hash(value string) string {
	a.mu.RLock()
	if cached, ok := a.cache[value]; ok {
		a.mu.RUnlock()
		return cached
	}
	a.mu.RUnlock()

	h := sha256.New()
	h.Write(a.salt)
	h.Write([]byte(value))
	result := hex.EncodeToString(h.Sum(nil))[:16]

	a.mu.Lock()
	a.cache[value] = result
	a.mu.Unlock()
	return result
}

// ClearCache frees memory used by the hash cache.
func (a *Anonymizer) ClearCache() {
	a.mu.Lock()
	a.cache = make(map[string]string)
	a.mu.Unlock()
}

// Pseudonymize replaces the values of fields with readable pseudonyms ("user_1",
// "user_2", ...). Numbering restarts on every traversal so a restarted read yields the
// same pseudonyms. prefixes maps a field to its prefix; the field name is the default.
func Pseudonymize(fields []string, prefixes map[string]string) table.Processor {
	set := make(map[string]string, len(fields))
	for _, f := range fields {
		prefix := prefixes[f]
		if prefix == "" {
			prefix = f
		}
		set[f] = prefix
	}

	return func(rows iter.Seq[table.ExtendedRow]) iter.Seq[table.ExtendedRow] {
		return func(yield func(table.ExtendedRow) bool) {
			mappings := make(map[string]map[string]string, len(set))
			for row := range rows {
				values := slices.Clone(row.Values)
				for i, h := range row.Headers {
					prefix, ok := set[h]
					if !ok || i >= len(values) || values[i] == nil {
						continue
					}
					m := mappings[h]
					if m == nil {
						m = make(map[string]string)
						mappings[h] = m
					}
					key := types.Key(values[i])
					p, ok := m[key]
					if !ok {
						p = prefix + "_" + strconv.Itoa(len(m)+1)
						m[key] = p
					}
					values[i] = p
				}
				row.Values = values
				if !yield(row) {
					return
				}
			}
		}
	}
}
