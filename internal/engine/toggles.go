package engine

import "sync/atomic"

// DefaultSnapshotThreshold is the number of writes between snapshots.
const DefaultSnapshotThreshold = 10

// Toggles holds the process-wide persistence switches shared by all engines.
// It is safe for concurrent use.
type Toggles struct {
	log       atomic.Bool
	snapshots atomic.Bool
	threshold atomic.Int64
}

// NewToggles returns toggles with logging and snapshots disabled.
func NewToggles() *Toggles {
	t := &Toggles{}
	t.threshold.Store(DefaultSnapshotThreshold)
	return t
}

// LogEnabled reports whether writes are appended to the operation log.
func (t *Toggles) LogEnabled() bool { return t.log.Load() }

// SetLog enables or disables the operation log.
func (t *Toggles) SetLog(on bool) { t.log.Store(on) }

// SnapshotsEnabled reports whether key-value snapshots are captured.
func (t *Toggles) SnapshotsEnabled() bool { return t.snapshots.Load() }

// SetSnapshots enables or disables key-value snapshots.
func (t *Toggles) SetSnapshots(on bool) { t.snapshots.Store(on) }

// Threshold returns the number of writes between snapshots.
func (t *Toggles) Threshold() int { return int(t.threshold.Load()) }

// SetThreshold sets the snapshot threshold. Values below 1 are clamped to 1.
func (t *Toggles) SetThreshold(n int) {
	if n < 1 {
		n = 1
	}
	t.threshold.Store(int64(n))
}

// State is the serialisable form of the toggles.
type State struct {
	Log       bool `json:"aof"`
	Snapshots bool `json:"rdb"`
	Threshold int  `json:"threshold"`
}

// State returns a copy of the current switches.
func (t *Toggles) State() State {
	return State{Log: t.LogEnabled(), Snapshots: t.SnapshotsEnabled(), Threshold: t.Threshold()}
}

// Restore applies a previously captured State.
func (t *Toggles) Restore(s State) {
	t.SetLog(s.Log)
	t.SetSnapshots(s.Snapshots)
	t.SetThreshold(s.Threshold)
}
