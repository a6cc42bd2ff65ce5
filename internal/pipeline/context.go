package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"dima/internal/fileutil"
)

// ErrKeyExists is returned by Set when the key is already present and
// overwrite was not requested.
var ErrKeyExists = errors.New("context key already exists")

// Context is the shared key/value store stages communicate through. Keys are
// namespaced "stage.artifact" strings; values must be JSON-serializable so
// the context can be checkpointed.
type Context struct {
	mu     sync.RWMutex
	values map[string]any
}

// NewContext returns an empty run context.
func NewContext() *Context {
	return &Context{values: make(map[string]any)}
}

// Set stores a value under key. When overwrite is false and the key already
// holds a value, Set fails with ErrKeyExists and leaves the context
// unchanged.
func (c *Context) Set(key string, value any, overwrite bool) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("context key must not be empty")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.values[key]; exists && !overwrite {
		return fmt.Errorf("%w: %s", ErrKeyExists, key)
	}
	c.values[key] = value
	return nil
}

// Lookup returns the value stored under key and whether it was present.
func (c *Context) Lookup(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	value, ok := c.values[key]
	return value, ok
}

// Get returns the value stored under key, or fallback when absent.
func (c *Context) Get(key string, fallback any) any {
	if value, ok := c.Lookup(key); ok {
		return value
	}
	return fallback
}

// GetString returns the string stored under key, or "" when the key is
// absent or holds a non-string value.
func (c *Context) GetString(key string) string {
	value, ok := c.Lookup(key)
	if !ok {
		return ""
	}
	s, _ := value.(string)
	return s
}

// Keys returns every stored key in sorted order.
func (c *Context) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0, len(c.values))
	for key := range c.values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of stored keys.
func (c *Context) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.values)
}

// Snapshot returns a copy of the current contents. The copy is detached:
// later writes to the context do not affect it.
func (c *Context) Snapshot() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	snapshot := make(map[string]any, len(c.values))
	for key, value := range c.values {
		snapshot[key] = value
	}
	return snapshot
}

// Restore replaces the context contents with a previously taken snapshot.
func (c *Context) Restore(snapshot map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values = make(map[string]any, len(snapshot))
	for key, value := range snapshot {
		c.values[key] = value
	}
}

// Merge stores every entry of outputs into the context. With overwrite false
// the merge is atomic: if any key already exists, nothing is written and the
// conflicting key is reported.
func (c *Context) Merge(outputs map[string]any, overwrite bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !overwrite {
		for key := range outputs {
			if _, exists := c.values[key]; exists {
				return fmt.Errorf("%w: %s", ErrKeyExists, key)
			}
		}
	}
	for key, value := range outputs {
		c.values[key] = value
	}
	return nil
}

// MarshalJSON encodes the current contents. Context satisfies
// json.Marshaler so checkpoints and reports can embed it directly.
func (c *Context) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Snapshot())
}

// SaveFile checkpoints the context to path as JSON. The write is atomic: a
// reader never observes a partially written checkpoint.
func (c *Context) SaveFile(path string) error {
	data, err := json.MarshalIndent(c.Snapshot(), "", "  ")
	if err != nil {
		return fmt.Errorf("encode context checkpoint: %w", err)
	}
	if err := fileutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("write context checkpoint: %w", err)
	}
	return nil
}

// LoadFile replaces the context contents with a checkpoint previously
// written by SaveFile.
func (c *Context) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read context checkpoint: %w", err)
	}
	var snapshot map[string]any
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return fmt.Errorf("decode context checkpoint %q: %w", path, err)
	}
	c.Restore(snapshot)
	return nil
}
