package router

import (
	"encoding/json"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/flashdb/playground/internal/bucket"
	"github.com/flashdb/playground/internal/engine"
)

// Archive is a full export of one context: the global switches and the three
// buckets.
type Archive struct {
	FormatVersion int            `json:"formatVersion"`
	Global        *engine.State  `json:"global"`
	Redis         *bucket.Bucket `json:"redis"`
	Mongo         *bucket.Bucket `json:"mongo"`
	Cassandra     *bucket.Bucket `json:"cassandra"`
}

func (a *Archive) section(name string) *bucket.Bucket {
	switch name {
	case "redis":
		return a.Redis
	case "mongo":
		return a.Mongo
	case "cassandra":
		return a.Cassandra
	}
	return nil
}

func (a *Archive) setSection(name string, b *bucket.Bucket) {
	switch name {
	case "redis":
		a.Redis = b
	case "mongo":
		a.Mongo = b
	case "cassandra":
		a.Cassandra = b
	}
}

// Export returns a deep copy of every bucket.
func (r *Router) Export() (*Archive, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	global := r.toggles.State()
	a := &Archive{FormatVersion: bucket.FormatVersion, Global: &global}
	for _, name := range engine.Names {
		b, err := r.engines[name].Export()
		if err != nil {
			return nil, fmt.Errorf("router: failed to export %s: %w", name, err)
		}
		a.setSection(name, b)
	}
	return a, nil
}

// Import replaces every bucket and the global switches. Nothing is replaced
// unless every section is present and has the supported format version.
func (r *Router) Import(a *Archive) error {
	if a.FormatVersion != bucket.FormatVersion {
		return fmt.Errorf("%w: Invalid formatVersion", bucket.ErrIncompatibleFormat)
	}
	if a.Global == nil || a.Redis == nil || a.Mongo == nil || a.Cassandra == nil {
		return fmt.Errorf("%w: Missing sections", bucket.ErrInvalid)
	}
	for _, name := range engine.Names {
		if err := bucket.Check(a.section(name)); err != nil {
			return fmt.Errorf("router: %s section: %w", name, err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, name := range engine.Names {
		if err := r.engines[name].Import(a.section(name)); err != nil {
			return fmt.Errorf("router: failed to import %s: %w", name, err)
		}
	}
	r.toggles.Restore(*a.Global)
	r.logger.Info("imported archive")
	return nil
}

// ExportEngine returns a deep copy of the named engine's bucket.
func (r *Router) ExportEngine(name string) (*bucket.Bucket, error) {
	e, err := r.lookup(name)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return e.Export()
}

// ImportEngine replaces the named engine's bucket.
func (r *Router) ImportEngine(name string, b *bucket.Bucket) error {
	e, err := r.lookup(name)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := e.Import(b); err != nil {
		return err
	}
	r.logger.Info("imported bucket", zap.String("engine", e.Name()))
	return nil
}

// WriteArchive encodes a as indented JSON.
func WriteArchive(w io.Writer, a *Archive) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(a); err != nil {
		return fmt.Errorf("router: failed to encode archive: %w", err)
	}
	return nil
}

// ReadArchive decodes an archive. Each bucket section is schema-validated.
func ReadArchive(rd io.Reader) (*Archive, error) {
	raw, err := io.ReadAll(rd)
	if err != nil {
		return nil, fmt.Errorf("router: failed to read archive: %w", err)
	}
	var sections map[string]json.RawMessage
	if err := json.Unmarshal(raw, &sections); err != nil {
		return nil, fmt.Errorf("%w: %v", bucket.ErrInvalid, err)
	}

	a := &Archive{}
	if v, ok := sections["formatVersion"]; ok {
		if err := json.Unmarshal(v, &a.FormatVersion); err != nil {
			return nil, fmt.Errorf("%w: %v", bucket.ErrInvalid, err)
		}
	}
	if a.FormatVersion != bucket.FormatVersion {
		return nil, fmt.Errorf("%w: Invalid formatVersion", bucket.ErrIncompatibleFormat)
	}
	if v, ok := sections["global"]; ok && string(v) != "null" {
		a.Global = &engine.State{}
		if err := json.Unmarshal(v, a.Global); err != nil {
			return nil, fmt.Errorf("%w: %v", bucket.ErrInvalid, err)
		}
	}
	for _, name := range engine.Names {
		v, ok := sections[name]
		if !ok || string(v) == "null" {
			continue
		}
		b, err := bucket.Decode(v)
		if err != nil {
			return nil, fmt.Errorf("router: %s section: %w", name, err)
		}
		a.setSection(name, b)
	}
	return a, nil
}
