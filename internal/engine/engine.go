// Package engine defines the contract shared by the simulated database engines.
// An engine owns a private data model, parses one command line at a time and
// reports its output as a sequence of typed lines.
package engine

import (
	"time"

	"github.com/flashdb/playground/internal/bucket"
)

// Kind classifies an output line for the host that renders it.
type Kind string

const (
	KindPlain  Kind = "plain"
	KindError  Kind = "error"
	KindPrompt Kind = "prompt"
	KindMuted  Kind = "muted"
	KindOK     Kind = "ok"
)

// Line is a single line of command output.
type Line struct {
	Kind Kind   `json:"kind"`
	Text string `json:"text"`
}

// Result is the outcome of executing one command line.
type Result struct {
	Lines []Line
	// Err carries the error reported to the user, if any. It has already been
	// rendered as an error line.
	Err error
	// Clear asks the host to reset its display before rendering Lines.
	Clear bool
}

// Add appends a line of the given kind.
func (r *Result) Add(kind Kind, text string) {
	r.Lines = append(r.Lines, Line{Kind: kind, Text: text})
}

// Print appends a plain line.
func (r *Result) Print(text string) {
	r.Add(KindPlain, text)
}

// Fail records err and appends it as an error line.
func (r *Result) Fail(err error) {
	r.Err = err
	r.Add(KindError, "(error) "+err.Error())
}

// Notifier receives output produced outside of Execute (pub/sub deliveries,
// expiry notices, routed command output) and activity ticks.
type Notifier interface {
	Emit(kind Kind, text string)
	RecordActivity(engine string)
}

// Engine is a simulated database engine.
type Engine interface {
	// Name is the engine's bucket name: redis, mongo or cassandra.
	Name() string
	// Prompt is the label echoed before each command.
	Prompt() string
	// Execute runs one command line. Errors never escape; they are reported
	// through the returned Result.
	Execute(line string) Result
	// Sweep removes every entry whose expiry is at or before now and returns
	// how many were removed.
	Sweep(now time.Time) int
	// Help returns the command summary when topic is empty, or usage for topic.
	Help(topic string) []string
	// Count reports the number of live entities for the stats display.
	Count() int
	// Export returns a deep copy of the engine's bucket.
	Export() (*bucket.Bucket, error)
	// Import replaces the engine's whole bucket.
	Import(b *bucket.Bucket) error
	// Log returns the append-only log, newest first.
	Log() []bucket.LogEntry
	// SetLogCap changes the log cap of the engine's bucket.
	SetLogCap(n int)
}

// Labels maps engine names to their prompt labels.
var Labels = map[string]string{
	"redis":     "redis> ",
	"mongo":     "mongo> ",
	"cassandra": "cql> ",
}

// Names lists the engines in display order.
var Names = []string{"redis", "mongo", "cassandra"}
