// Package bucket provides the persisted envelope of one simulated database:
// its data model, settings, operation log and snapshots.
package bucket

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"
)

// FormatVersion is the only envelope version this build understands.
const FormatVersion = 2

const (
	// DefaultLogCap is the log cap given to new buckets.
	DefaultLogCap = 800
	// DefaultSnapshotCap is the snapshot cap given to new buckets.
	DefaultSnapshotCap = 8
	// MinLogCap is the smallest effective log cap.
	MinLogCap = 50
	// MinSnapshotCap is the smallest effective snapshot cap.
	MinSnapshotCap = 1
)

var (
	// ErrIncompatibleFormat is returned for envelopes of another format version.
	ErrIncompatibleFormat = errors.New("bucket: incompatible format version")
	// ErrInvalid is returned for envelopes that fail schema validation.
	ErrInvalid = errors.New("bucket: invalid envelope")
)

// Settings are the per-bucket tunables.
type Settings struct {
	LogCap      int `json:"logCap"`
	SnapshotCap int `json:"snapshotCap"`
}

// EffectiveLogCap returns the log cap clamped to its minimum.
func (s Settings) EffectiveLogCap() int {
	return max(MinLogCap, s.LogCap)
}

// EffectiveSnapshotCap returns the snapshot cap clamped to its minimum.
func (s Settings) EffectiveSnapshotCap() int {
	return max(MinSnapshotCap, s.SnapshotCap)
}

// LogEntry is one line of the append-only operation log.
type LogEntry struct {
	T    int64  `json:"t"`
	Line string `json:"line"`
}

// Snapshot is a full copy of a data model captured at T.
type Snapshot struct {
	T    int64           `json:"t"`
	Data json.RawMessage `json:"data"`
}

// Bucket is the persisted state of one engine.
type Bucket struct {
	FormatVersion int             `json:"formatVersion"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
	Data          json.RawMessage `json:"data"`
	Settings      Settings        `json:"settings"`
	Log           []LogEntry      `json:"log"`
	Snapshots     []Snapshot      `json:"snapshots,omitempty"`
}

// New returns a fresh bucket holding data.
func New(data json.RawMessage, settings Settings, now time.Time) *Bucket {
	return &Bucket{
		FormatVersion: FormatVersion,
		CreatedAt:     now.UTC(),
		UpdatedAt:     now.UTC(),
		Data:          data,
		Settings:      settings,
		Log:           []LogEntry{},
	}
}

// Clone returns a deep copy of b.
func (b *Bucket) Clone() *Bucket {
	c := *b
	c.Data = cloneRaw(b.Data)
	c.Log = append([]LogEntry{}, b.Log...)
	if b.Snapshots != nil {
		c.Snapshots = make([]Snapshot, len(b.Snapshots))
		for i, s := range b.Snapshots {
			c.Snapshots[i] = Snapshot{T: s.T, Data: cloneRaw(s.Data)}
		}
	}
	return &c
}

func cloneRaw(r json.RawMessage) json.RawMessage {
	if r == nil {
		return nil
	}
	return append(json.RawMessage(nil), r...)
}

// Encode serialises b as indented JSON.
func Encode(b *Bucket) ([]byte, error) {
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("bucket: encode: %w", err)
	}
	return data, nil
}

const envelopeSchema = `{
  "type": "object",
  "required": ["formatVersion", "data"],
  "properties": {
    "formatVersion": {"type": "integer"},
    "createdAt": {"type": "string"},
    "updatedAt": {"type": "string"},
    "data": {"type": "object"},
    "settings": {
      "type": "object",
      "properties": {
        "logCap": {"type": "integer"},
        "snapshotCap": {"type": "integer"}
      }
    },
    "log": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["t", "line"],
        "properties": {"t": {"type": "integer"}, "line": {"type": "string"}}
      }
    },
    "snapshots": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["t", "data"],
        "properties": {"t": {"type": "integer"}, "data": {"type": "object"}}
      }
    }
  }
}`

var schema = mustSchema(envelopeSchema)

func mustSchema(s string) *gojsonschema.Schema {
	sc, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(s))
	if err != nil {
		panic(fmt.Sprintf("bucket: compile schema: %v", err))
	}
	return sc
}

// Validate checks raw against the envelope schema and the format version.
func Validate(raw []byte) error {
	result, err := schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	// The version is checked before the rest of the schema so that envelopes
	// from other versions report the precise reason.
	var probe struct {
		FormatVersion *json.Number `json:"formatVersion"`
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&probe); err == nil && probe.FormatVersion != nil {
		if probe.FormatVersion.String() != fmt.Sprint(FormatVersion) {
			return fmt.Errorf("%w: got %s, want %d", ErrIncompatibleFormat, probe.FormatVersion.String(), FormatVersion)
		}
	}

	if !result.Valid() {
		var errs []string
		for _, desc := range result.Errors() {
			errs = append(errs, desc.String())
		}
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(errs, "; "))
	}
	return nil
}

// Decode validates and parses an envelope.
func Decode(raw []byte) (*Bucket, error) {
	if err := Validate(raw); err != nil {
		return nil, err
	}
	var b Bucket
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if b.Log == nil {
		b.Log = []LogEntry{}
	}
	return &b, nil
}

// Check verifies an in-memory bucket before it replaces an engine's state.
func Check(b *Bucket) error {
	if b == nil {
		return fmt.Errorf("%w: missing bucket", ErrInvalid)
	}
	if b.FormatVersion != FormatVersion {
		return fmt.Errorf("%w: got %d, want %d", ErrIncompatibleFormat, b.FormatVersion, FormatVersion)
	}
	if len(bytes.TrimSpace(b.Data)) == 0 || bytes.Equal(bytes.TrimSpace(b.Data), []byte("null")) {
		return fmt.Errorf("%w: missing \"data\"", ErrInvalid)
	}
	return nil
}
