// Package router owns the three engines of one execution context. It selects
// the active engine, intercepts the CLEAR and HELP meta-commands and
// serializes command execution with the periodic TTL sweep.
package router

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode"

	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"

	"github.com/flashdb/playground/internal/activity"
	"github.com/flashdb/playground/internal/bucket"
	"github.com/flashdb/playground/internal/columnar"
	"github.com/flashdb/playground/internal/document"
	"github.com/flashdb/playground/internal/engine"
	"github.com/flashdb/playground/internal/keyvalue"
	"github.com/flashdb/playground/internal/pubsub"
	"github.com/flashdb/playground/internal/snapshot"
)

// DefaultSweepInterval is the period of the background TTL sweep.
const DefaultSweepInterval = time.Second

const (
	readyText    = "Ready. Type HELP for supported commands. Type CLEAR to clear terminal."
	switchedText = "Switched database."
	guideText    = "See CRUD Guide or Quick Start for examples."
)

// Options configures a Router.
type Options struct {
	Store    bucket.Store
	Toggles  *engine.Toggles
	Bus      pubsub.Bus
	Meter    *activity.Meter
	Logger   *zap.Logger
	Now      func() time.Time
	Defaults bucket.Settings

	// Active is the initially selected engine; empty selects redis.
	Active string
	// ContextID names this context on the bus; empty generates one.
	ContextID string
}

// Router dispatches command lines to the engines of one context. It is safe
// for concurrent use; Execute, Switch and Sweep run one at a time.
type Router struct {
	mu      sync.Mutex
	engines map[string]engine.Engine
	kv      *keyvalue.Engine
	doc     *document.Engine
	cql     *columnar.Engine
	active  string

	toggles *engine.Toggles
	meter   *activity.Meter
	logger  *zap.Logger
	now     func() time.Time

	sinks  *xsync.MapOf[uint64, engine.Notifier]
	nextID atomic.Uint64
}

// New loads the three buckets from opts.Store and builds the engines.
func New(opts Options) (*Router, error) {
	if opts.Toggles == nil {
		opts.Toggles = engine.NewToggles()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Meter == nil {
		opts.Meter = activity.New(activity.DefaultWindow, opts.Now)
	}
	if opts.Store == nil {
		opts.Store = bucket.NewMemoryStore()
	}
	if opts.Active == "" {
		opts.Active = keyvalue.BucketName
	}
	if _, ok := engine.Labels[opts.Active]; !ok {
		return nil, fmt.Errorf("router: unknown engine %q", opts.Active)
	}

	r := &Router{
		active:  opts.Active,
		toggles: opts.Toggles,
		meter:   opts.Meter,
		logger:  opts.Logger.Named("router"),
		now:     opts.Now,
		sinks:   xsync.NewMapOf[uint64, engine.Notifier](),
	}
	deps := engine.Deps{
		Store:     opts.Store,
		Toggles:   opts.Toggles,
		Notifier:  r,
		Bus:       opts.Bus,
		Logger:    opts.Logger,
		Now:       opts.Now,
		ContextID: opts.ContextID,
		Defaults:  opts.Defaults,
	}

	var err error
	if r.kv, err = keyvalue.New(deps); err != nil {
		return nil, fmt.Errorf("router: failed to start key-value engine: %w", err)
	}
	if r.doc, err = document.New(deps); err != nil {
		r.kv.Close()
		return nil, fmt.Errorf("router: failed to start document engine: %w", err)
	}
	if r.cql, err = columnar.New(deps); err != nil {
		r.kv.Close()
		return nil, fmt.Errorf("router: failed to start columnar engine: %w", err)
	}
	r.engines = map[string]engine.Engine{
		keyvalue.BucketName: r.kv,
		document.BucketName: r.doc,
		columnar.BucketName: r.cql,
	}
	return r, nil
}

// Close detaches the router's engines from the bus.
func (r *Router) Close() error {
	return r.kv.Close()
}

// Emit forwards an out-of-band line to every attached sink.
func (r *Router) Emit(kind engine.Kind, text string) {
	r.sinks.Range(func(_ uint64, n engine.Notifier) bool {
		n.Emit(kind, text)
		return true
	})
}

// RecordActivity feeds the operation meter and the attached sinks.
func (r *Router) RecordActivity(name string) {
	r.meter.Record(name)
	r.sinks.Range(func(_ uint64, n engine.Notifier) bool {
		n.RecordActivity(name)
		return true
	})
}

// Attach registers n to receive emitted lines and activity ticks. Sinks are
// called with the router lock held and must not call back into the router.
func (r *Router) Attach(n engine.Notifier) (detach func()) {
	id := r.nextID.Add(1)
	r.sinks.Store(id, n)
	return func() { r.sinks.Delete(id) }
}

// Toggles returns the global persistence switches.
func (r *Router) Toggles() *engine.Toggles { return r.toggles }

// Meter returns the operation meter.
func (r *Router) Meter() *activity.Meter { return r.meter }

// Snapshots lists the key-value snapshots, newest first.
func (r *Router) Snapshots() []snapshot.Meta {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.kv.Snapshots()
}

// Active returns the name of the selected engine.
func (r *Router) Active() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Prompt returns the prompt label of the selected engine.
func (r *Router) Prompt() string {
	return engine.Labels[r.Active()]
}

func (r *Router) lookup(name string) (engine.Engine, error) {
	e, ok := r.engines[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("router: unknown engine %q", name)
	}
	return e, nil
}

// Switch selects the engine called name. Switching to the already active
// engine is a no-op.
func (r *Router) Switch(name string) (engine.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var res engine.Result
	e, err := r.lookup(name)
	if err != nil {
		return res, err
	}
	if e.Name() == r.active {
		return res, nil
	}
	r.active = e.Name()
	res.Add(engine.KindMuted, e.Prompt()+switchedText)
	return res, nil
}

// Execute runs line against the active engine.
func (r *Router) Execute(line string) engine.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.execute(r.engines[r.active], line)
}

// ExecuteOn runs line against the named engine without changing the
// selection.
func (r *Router) ExecuteOn(name, line string) (engine.Result, error) {
	e, err := r.lookup(name)
	if err != nil {
		return engine.Result{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.execute(e, line), nil
}

func (r *Router) execute(e engine.Engine, line string) engine.Result {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return engine.Result{}
	}
	verb, rest := trimmed, ""
	if i := strings.IndexFunc(trimmed, unicode.IsSpace); i >= 0 {
		verb, rest = trimmed[:i], trimmed[i:]
	}
	switch strings.ToUpper(verb) {
	case "CLEAR":
		res := engine.Result{Clear: true}
		res.Add(engine.KindMuted, e.Prompt()+readyText)
		r.RecordActivity(e.Name())
		return res
	case "HELP":
		res := help(e, strings.TrimSpace(rest))
		r.RecordActivity(e.Name())
		return res
	}
	return e.Execute(trimmed)
}

func help(e engine.Engine, topic string) engine.Result {
	var res engine.Result
	echo := e.Prompt() + "HELP"
	if topic != "" {
		echo += " " + topic
	}
	res.Add(engine.KindPrompt, echo)

	switch {
	case topic == "":
		for _, l := range e.Help("") {
			res.Print(" - " + l)
		}
	case e.Name() == keyvalue.BucketName:
		for _, l := range e.Help(topic) {
			res.Print(l)
		}
	default:
		res.Print(guideText)
	}
	return res
}

// Sweep expires TTL-bearing entries in every engine and returns the number
// removed.
func (r *Router) Sweep(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for _, name := range engine.Names {
		removed += r.engines[name].Sweep(now)
	}
	return removed
}

// RunSweeper sweeps every interval until ctx is cancelled.
func (r *Router) RunSweeper(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := r.Sweep(r.now()); n > 0 {
				r.logger.Debug("sweep removed entries", zap.Int("count", n))
			}
		}
	}
}

// Log returns the operation log of the named engine, newest first.
func (r *Router) Log(name string) ([]bucket.LogEntry, error) {
	e, err := r.lookup(name)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return e.Log(), nil
}

// SetLogCap changes the log cap of the named engine's bucket.
func (r *Router) SetLogCap(name string, n int) error {
	e, err := r.lookup(name)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	e.SetLogCap(n)
	return nil
}

// EngineStats are the live counters of one engine.
type EngineStats struct {
	Name  string  `json:"name"`
	Count int     `json:"count"`
	Rate  float64 `json:"rate"`
	Total uint64  `json:"total"`
}

// Stats are the live counters of a context.
type Stats struct {
	Active  string           `json:"active"`
	Engines []EngineStats    `json:"engines"`
	Toggles engine.State     `json:"global"`
	Busiest []activity.Entry `json:"busiest,omitempty"`
}

// Stats reports entity counts and operation rates for every engine.
func (r *Router) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Stats{Active: r.active, Toggles: r.toggles.State(), Busiest: r.meter.Top(len(engine.Names))}
	for _, name := range engine.Names {
		s.Engines = append(s.Engines, EngineStats{
			Name:  name,
			Count: r.engines[name].Count(),
			Rate:  r.meter.Rate(name),
			Total: r.meter.Total(name),
		})
	}
	return s
}
