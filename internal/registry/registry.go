package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	CategoryOffices     = "escritorios"
	CategoryNegotiators = "negociadores"
)

// Registry is a name dictionary that remembers the order in which keys
// appear in its backing file.
type Registry struct {
	keys   []string
	values map[string]string
}

func NewRegistry() *Registry {
	return &Registry{values: map[string]string{}}
}

func (r *Registry) Set(key, value string) {
	if _, ok := r.values[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.values[key] = value
}

func (r *Registry) Get(key string) (string, bool) {
	v, ok := r.values[key]
	return v, ok
}

func (r *Registry) Keys() []string {
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

func (r *Registry) Len() int {
	return len(r.keys)
}

// FileName returns the per-mesa file for a category, e.g.
// escritorios_btblue.json. An empty mesa selects the shared file.
func FileName(category, mesa string) string {
	mesa = strings.ToLower(strings.TrimSpace(mesa))
	if mesa == "" {
		return category + ".json"
	}
	return category + "_" + mesa + ".json"
}

// Load reads the category object of a registry file keeping key order.
func Load(path, category string) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return decode(f, category)
}

func decode(r io.Reader, category string) (*Registry, error) {
	dec := json.NewDecoder(r)
	if err := expectDelim(dec, '{'); err != nil {
		return nil, err
	}

	reg := NewRegistry()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, _ := tok.(string)
		if key != category {
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return nil, err
			}
			continue
		}
		if err := decodeEntries(dec, reg); err != nil {
			return nil, fmt.Errorf("%s: %w", category, err)
		}
	}
	return reg, nil
}

func decodeEntries(dec *json.Decoder, reg *Registry) error {
	if err := expectDelim(dec, '{'); err != nil {
		return err
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return errors.New("non-string key")
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		value := key
		var s string
		if json.Unmarshal(raw, &s) == nil && strings.TrimSpace(s) != "" {
			value = s
		}
		reg.Set(key, value)
	}
	return expectDelim(dec, '}')
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("expected %q, got %v", want, tok)
	}
	return nil
}

// SaveNames writes a self-mapping registry for names, sorted, in the
// {"<category>": {...}, "total": N} layout.
func SaveNames(path, category string, names []string) error {
	sorted := make([]string, 0, len(names))
	entries := make(map[string]string, len(names))
	for _, n := range names {
		if _, ok := entries[n]; ok || n == "" {
			continue
		}
		entries[n] = n
		sorted = append(sorted, n)
	}
	sort.Strings(sorted)

	blob, err := json.MarshalIndent(map[string]any{category: entries, "total": len(sorted)}, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, blob, 0o644)
}
