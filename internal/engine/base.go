package engine

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/flashdb/playground/internal/bucket"
	"github.com/flashdb/playground/internal/oplog"
	"github.com/flashdb/playground/internal/pubsub"
	"github.com/flashdb/playground/internal/snapshot"
)

// Deps are the collaborators an engine is constructed with. Zero fields get
// working defaults.
type Deps struct {
	Store    bucket.Store
	Toggles  *Toggles
	Notifier Notifier
	Bus      pubsub.Bus
	Logger   *zap.Logger
	Now      func() time.Time

	// ContextID identifies the execution context on the message bus.
	ContextID string

	// Defaults are the settings given to buckets created from scratch.
	Defaults bucket.Settings
}

func (d Deps) withDefaults() Deps {
	if d.Store == nil {
		d.Store = bucket.NewMemoryStore()
	}
	if d.Toggles == nil {
		d.Toggles = NewToggles()
	}
	if d.Notifier == nil {
		d.Notifier = Discard
	}
	if d.Bus == nil {
		d.Bus = pubsub.NewLocalBus()
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.ContextID == "" {
		d.ContextID = uuid.NewString()
	}
	if d.Defaults.LogCap == 0 {
		d.Defaults.LogCap = bucket.DefaultLogCap
	}
	if d.Defaults.SnapshotCap == 0 {
		d.Defaults.SnapshotCap = bucket.DefaultSnapshotCap
	}
	return d
}

type discard struct{}

func (discard) Emit(Kind, string)     {}
func (discard) RecordActivity(string) {}

// Discard is a Notifier that drops everything.
var Discard Notifier = discard{}

// Base carries the bucket plumbing shared by every engine: loading, the
// operation log, snapshots and persistence. Engines embed it.
type Base struct {
	deps   Deps
	name   string
	logger *zap.Logger
	bucket *bucket.Bucket
	log    *oplog.Log
	snaps  *snapshot.Ring
}

// NewBase loads the named bucket from the store, creating it from initial if
// it does not exist. It returns the data model to decode. When withSnapshots
// is set the bucket keeps a snapshot ring.
func NewBase(name string, deps Deps, initial json.RawMessage, withSnapshots bool) (*Base, json.RawMessage, error) {
	deps = deps.withDefaults()
	b := &Base{
		deps:   deps,
		name:   name,
		logger: deps.Logger.With(zap.String("engine", name)),
	}

	loaded, err := deps.Store.Load(name)
	if err != nil {
		return nil, nil, fmt.Errorf("engine: failed to load %s bucket: %w", name, err)
	}
	if loaded == nil {
		loaded = bucket.New(initial, deps.Defaults, deps.Now())
		if withSnapshots {
			loaded.Snapshots = []bucket.Snapshot{}
		}
		if err := deps.Store.Save(name, loaded); err != nil {
			b.logger.Warn("failed to create bucket", zap.Error(err))
		}
		b.logger.Debug("created bucket")
	}

	b.bucket = loaded
	b.log = oplog.New(loaded.Settings.EffectiveLogCap(), loaded.Log)
	if withSnapshots {
		b.snaps = snapshot.NewRing(loaded.Settings.EffectiveSnapshotCap(), loaded.Snapshots)
	}
	return b, loaded.Data, nil
}

// Name returns the bucket name.
func (b *Base) Name() string { return b.name }

// Prompt returns the engine's prompt label.
func (b *Base) Prompt() string { return Labels[b.name] }

// Now returns the engine clock's current time.
func (b *Base) Now() time.Time { return b.deps.Now() }

// Logger returns the engine's logger.
func (b *Base) Logger() *zap.Logger { return b.logger }

// Toggles returns the shared persistence switches.
func (b *Base) Toggles() *Toggles { return b.deps.Toggles }

// ContextID returns the identifier of the engine's execution context.
func (b *Base) ContextID() string { return b.deps.ContextID }

// Bus returns the message bus.
func (b *Base) Bus() pubsub.Bus { return b.deps.Bus }

// Emit sends an out-of-band line to the notifier.
func (b *Base) Emit(kind Kind, text string) { b.deps.Notifier.Emit(kind, text) }

// Activity records one completed operation.
func (b *Base) Activity() { b.deps.Notifier.RecordActivity(b.name) }

// AppendLog records text in the operation log when logging is enabled.
func (b *Base) AppendLog(text string) {
	if !b.deps.Toggles.LogEnabled() {
		return
	}
	b.log.Record(b.Now(), fmt.Sprintf("[%s] %s", b.name, text))
}

// CaptureSnapshot counts a write and captures model when the threshold is
// reached. It does nothing while snapshots are disabled or the bucket keeps
// no snapshots.
func (b *Base) CaptureSnapshot(model any) {
	if b.snaps == nil || !b.deps.Toggles.SnapshotsEnabled() {
		return
	}
	taken, err := b.snaps.Tick(b.Now(), b.deps.Toggles.Threshold(), func() (json.RawMessage, error) {
		return json.Marshal(model)
	})
	if err != nil {
		b.logger.Warn("failed to capture snapshot", zap.Error(err))
		return
	}
	if taken {
		b.logger.Debug("captured snapshot", zap.Int("writes", b.snaps.Writes()))
	}
}

// Snapshots returns metadata for the held snapshots, newest first.
func (b *Base) Snapshots() []snapshot.Meta {
	if b.snaps == nil {
		return nil
	}
	return b.snaps.List()
}

// Snapshot returns the snapshot at position i, 0 being the newest.
func (b *Base) Snapshot(i int) (bucket.Snapshot, error) {
	if b.snaps == nil {
		return bucket.Snapshot{}, fmt.Errorf("engine: %s keeps no snapshots", b.name)
	}
	return b.snaps.Load(i)
}

// Log returns the operation log, newest first.
func (b *Base) Log() []bucket.LogEntry { return b.log.Entries() }

// LogSince returns log entries recorded after the given epoch milliseconds.
func (b *Base) LogSince(afterMillis int64) []bucket.LogEntry { return b.log.Since(afterMillis) }

// SetLogCap changes the log cap. Values below bucket.MinLogCap are clamped.
func (b *Base) SetLogCap(n int) {
	n = max(bucket.MinLogCap, n)
	b.bucket.Settings.LogCap = n
	b.log.SetCap(n)
}

// SetSnapshotCap changes the snapshot cap. Values below bucket.MinSnapshotCap
// are clamped.
func (b *Base) SetSnapshotCap(n int) {
	n = max(bucket.MinSnapshotCap, n)
	b.bucket.Settings.SnapshotCap = n
	if b.snaps != nil {
		b.snaps.SetCap(n)
	}
}

// Settings returns the bucket settings.
func (b *Base) Settings() bucket.Settings { return b.bucket.Settings }

func (b *Base) envelope(model any) (*bucket.Bucket, error) {
	data, err := json.Marshal(model)
	if err != nil {
		return nil, fmt.Errorf("engine: failed to encode %s model: %w", b.name, err)
	}
	b.bucket.Data = data
	b.bucket.Log = b.log.Entries()
	if b.snaps != nil {
		b.bucket.Snapshots = b.snaps.Entries()
	}
	return b.bucket, nil
}

// Persist writes model and the bucket envelope to the store. Failures are
// logged and otherwise ignored.
func (b *Base) Persist(model any) {
	env, err := b.envelope(model)
	if err != nil {
		b.logger.Warn("failed to persist bucket", zap.Error(err))
		return
	}
	env.UpdatedAt = b.Now().UTC()
	if err := b.deps.Store.Save(b.name, env); err != nil {
		b.logger.Warn("failed to persist bucket", zap.Error(err))
	}
}

// ExportBucket returns a deep copy of the bucket holding model.
func (b *Base) ExportBucket(model any) (*bucket.Bucket, error) {
	env, err := b.envelope(model)
	if err != nil {
		return nil, err
	}
	return env.Clone(), nil
}

// ImportBucket validates in, hands its data to decode and, if decoding
// succeeds, replaces the bucket and persists it.
func (b *Base) ImportBucket(in *bucket.Bucket, decode func(json.RawMessage) error) error {
	if err := bucket.Check(in); err != nil {
		return err
	}
	env := in.Clone()
	if err := decode(env.Data); err != nil {
		return fmt.Errorf("%w: %v", bucket.ErrInvalid, err)
	}
	if env.Log == nil {
		env.Log = []bucket.LogEntry{}
	}
	if b.snaps != nil && env.Snapshots == nil {
		env.Snapshots = []bucket.Snapshot{}
	}

	b.bucket = env
	b.log.SetCap(env.Settings.EffectiveLogCap())
	b.log.Reset(env.Log)
	if b.snaps != nil {
		b.snaps.SetCap(env.Settings.EffectiveSnapshotCap())
		b.snaps.Reset(env.Snapshots)
	}

	if err := b.deps.Store.Save(b.name, env); err != nil {
		b.logger.Warn("failed to persist imported bucket", zap.Error(err))
	}
	b.logger.Info("imported bucket", zap.Int("log_entries", len(env.Log)))
	return nil
}
