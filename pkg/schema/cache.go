package schema

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	tferrors "github.com/tabflow/tabflow/pkg/errors"
)

// Cache keeps inferred descriptors by header fingerprint so that many files with the
// same layout are inferred once.
type Cache struct {
	mu          sync.RWMutex
	descriptors map[string]Descriptor
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{descriptors: make(map[string]Descriptor)}
}

// Get returns the cached descriptor for headers.
func (c *Cache) Get(headers []string) (Descriptor, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.descriptors[Fingerprint(headers)]
	if !ok {
		return Descriptor{}, false
	}
	return d.Clone(), true
}

// Put stores d under the fingerprint of its field names.
func (c *Cache) Put(d Descriptor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.descriptors[Fingerprint(d.FieldNames())] = Normalize(d)
}

// GetOrInfer returns the cached descriptor for headers or calls infer and caches its
// result.
func (c *Cache) GetOrInfer(headers []string, infer func() (*Descriptor, error)) (Descriptor, error) {
	if d, ok := c.Get(headers); ok {
		return d, nil
	}
	d, err := infer()
	if err != nil {
		return Descriptor{}, err
	}
	// Empty samples produce no fields and must not shadow a later real inference.
	if len(d.Fields) > 0 {
		c.Put(*d)
	}
	return d.Clone(), nil
}

// Len returns the number of cached descriptors.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.descriptors)
}

// Fingerprint identifies a header layout.
func Fingerprint(headers []string) string {
	return strings.Join(headers, "\x1f")
}

// Save writes the descriptor as indented JSON.
func (d Descriptor) Save(path string) error {
	data, err := d.JSON()
	if err != nil {
		return tferrors.Wrap(err, tferrors.CodeSchemaLoad, "failed to encode descriptor")
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return tferrors.Wrap(err, tferrors.CodeSchemaLoad, "failed to write descriptor").
			WithContext("path", path)
	}
	return nil
}

// SchemaFile returns the sidecar descriptor path for a data file.
func SchemaFile(dataPath string) string {
	ext := filepath.Ext(dataPath)
	base := strings.TrimSuffix(dataPath, ext)
	return base + ".schema.json"
}
