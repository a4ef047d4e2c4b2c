// Package console provides the interactive terminal host. It reads command
// lines with history and editing, routes them and renders the output.
package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/peterh/liner"
	"go.uber.org/zap"

	"github.com/flashdb/playground/internal/engine"
	"github.com/flashdb/playground/internal/router"
)

const clearScreen = "\033[H\033[2J"

var dotHelp = []string{
	".use redis|mongo|cassandra   switch the active engine",
	".aof on|off                  toggle the operation log",
	".rdb on|off [threshold]      toggle key-value snapshots",
	".logcap <n>                  set the log cap of the active engine",
	".stats                       show entity counts and operation rates",
	".log [n]                     show the newest log entries",
	".snapshots                   list key-value snapshots",
	".export <file>               write every bucket to file",
	".import <file>               replace every bucket from file",
	".exit                        leave the shell",
}

// Console is a terminal host over one router. Out-of-band lines emitted by
// the engines are written to the same output as command results.
type Console struct {
	router *router.Router
	logger *zap.Logger

	mu  sync.Mutex
	out io.Writer
	// echo prints prompt lines, for non-interactive output.
	echo bool
}

// New creates a console writing to out and attaches it to r.
func New(r *router.Router, out io.Writer, logger *zap.Logger) *Console {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Console{router: r, out: out, logger: logger.Named("console")}
	r.Attach(c)
	return c
}

// Emit writes an out-of-band line.
func (c *Console) Emit(kind engine.Kind, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeLine(kind, text)
}

// RecordActivity is a no-op; rates are read with .stats.
func (c *Console) RecordActivity(string) {}

func (c *Console) writeLine(kind engine.Kind, text string) {
	switch kind {
	case engine.KindPrompt:
		if !c.echo {
			return
		}
	case engine.KindMuted:
		text = "# " + text
	}
	fmt.Fprintln(c.out, text)
}

func (c *Console) render(res engine.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if res.Clear {
		fmt.Fprint(c.out, clearScreen)
	}
	for _, l := range res.Lines {
		c.writeLine(l.Kind, l.Text)
	}
}

func (c *Console) print(lines ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, l := range lines {
		fmt.Fprintln(c.out, l)
	}
}

func (c *Console) fail(err error) {
	c.print("(error) " + err.Error())
}

// Run reads lines until EOF, .exit, Ctrl-C or the cancellation of ctx. The
// history is kept in historyPath when it is not empty.
func (c *Console) Run(ctx context.Context, historyPath string) error {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)
	line.SetCompleter(c.complete)

	if historyPath != "" {
		if f, err := os.Open(historyPath); err == nil {
			line.ReadHistory(f)
			f.Close()
		}
		defer func() {
			f, err := os.Create(historyPath)
			if err != nil {
				c.logger.Warn("failed to save history", zap.Error(err))
				return
			}
			line.WriteHistory(f)
			f.Close()
		}()
	}

	c.render(c.router.Execute("CLEAR"))
	for ctx.Err() == nil {
		input, err := line.Prompt(c.router.Prompt())
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("console: failed to read input: %w", err)
		}
		if strings.TrimSpace(input) == "" {
			continue
		}
		line.AppendHistory(input)
		if quit := c.Handle(input); quit {
			return nil
		}
	}
	return nil
}

// RunScript executes lines with prompt echo, as for a piped session. It
// stops at .exit.
func (c *Console) RunScript(lines []string) {
	c.setEcho(true)
	defer c.setEcho(false)
	for _, l := range lines {
		if strings.TrimSpace(l) == "" {
			continue
		}
		if c.Handle(l) {
			return
		}
	}
}

func (c *Console) setEcho(on bool) {
	c.mu.Lock()
	c.echo = on
	c.mu.Unlock()
}

func (c *Console) complete(input string) []string {
	if !strings.HasPrefix(input, ".") {
		return nil
	}
	var out []string
	for _, h := range dotHelp {
		name, _, _ := strings.Cut(h, " ")
		if strings.HasPrefix(name, input) {
			out = append(out, name)
		}
	}
	return out
}

// Handle runs one input line and reports whether the shell should exit.
func (c *Console) Handle(input string) (quit bool) {
	input = strings.TrimSpace(input)
	if !strings.HasPrefix(input, ".") {
		c.render(c.router.Execute(input))
		return false
	}

	fields := strings.Fields(input)
	cmd, args := fields[0], fields[1:]
	switch cmd {
	case ".exit", ".quit":
		return true
	case ".help":
		c.print(dotHelp...)
	case ".use":
		if len(args) != 1 {
			c.print("Usage: .use redis|mongo|cassandra")
			return false
		}
		res, err := c.router.Switch(args[0])
		if err != nil {
			c.fail(err)
			return false
		}
		c.render(res)
	case ".aof":
		on, ok := onOff(args)
		if !ok {
			c.print("Usage: .aof on|off")
			return false
		}
		c.router.Toggles().SetLog(on)
		c.print("AOF " + args[0])
	case ".rdb":
		on, ok := onOff(args)
		if !ok {
			c.print("Usage: .rdb on|off [threshold]")
			return false
		}
		t := c.router.Toggles()
		t.SetSnapshots(on)
		if len(args) > 1 {
			n, err := strconv.Atoi(args[1])
			if err != nil {
				c.print("Usage: .rdb on|off [threshold]")
				return false
			}
			t.SetThreshold(n)
		}
		c.print(fmt.Sprintf("RDB %s (every %d writes)", args[0], t.Threshold()))
	case ".logcap":
		n, err := intArg(args)
		if err != nil {
			c.print("Usage: .logcap <n>")
			return false
		}
		if err := c.router.SetLogCap(c.router.Active(), n); err != nil {
			c.fail(err)
		}
	case ".stats":
		s := c.router.Stats()
		lines := []string{fmt.Sprintf("active: %s  aof: %t  rdb: %t (every %d writes)",
			s.Active, s.Toggles.Log, s.Toggles.Snapshots, s.Toggles.Threshold)}
		for _, e := range s.Engines {
			lines = append(lines, fmt.Sprintf("%-10s %6d live  %6.1f ops/s  %d total", e.Name, e.Count, e.Rate, e.Total))
		}
		c.print(lines...)
	case ".log":
		n := 20
		if len(args) > 0 {
			v, err := intArg(args)
			if err != nil || v < 0 {
				c.print("Usage: .log [n]")
				return false
			}
			n = v
		}
		entries, err := c.router.Log(c.router.Active())
		if err != nil {
			c.fail(err)
			return false
		}
		if len(entries) == 0 {
			c.print("(log is empty)")
		}
		for _, e := range entries[:min(n, len(entries))] {
			c.print(time.UnixMilli(e.T).UTC().Format(time.RFC3339) + "  " + e.Line)
		}
	case ".snapshots":
		snaps := c.router.Snapshots()
		if len(snaps) == 0 {
			c.print("(no snapshots)")
		}
		for i, s := range snaps {
			c.print(fmt.Sprintf("#%d  %s  %d bytes", i, time.UnixMilli(s.T).UTC().Format(time.RFC3339), s.SizeBytes))
		}
	case ".export":
		if len(args) != 1 {
			c.print("Usage: .export <file>")
			return false
		}
		if err := c.exportTo(args[0]); err != nil {
			c.print("(error) Export failed: " + err.Error())
			return false
		}
		c.print("Exported to " + args[0] + ".")
	case ".import":
		if len(args) != 1 {
			c.print("Usage: .import <file>")
			return false
		}
		if err := c.importFrom(args[0]); err != nil {
			c.print("(error) Import failed: " + err.Error())
			return false
		}
		c.render(c.router.Execute("CLEAR"))
		c.print("Import successful.")
	default:
		c.print("Unknown shell command " + cmd + ". Type .help for the list.")
	}
	return false
}

func onOff(args []string) (bool, bool) {
	if len(args) == 0 {
		return false, false
	}
	switch strings.ToLower(args[0]) {
	case "on":
		return true, true
	case "off":
		return false, true
	}
	return false, false
}

func intArg(args []string) (int, error) {
	if len(args) != 1 {
		return 0, errors.New("console: one integer argument expected")
	}
	return strconv.Atoi(args[0])
}

func (c *Console) exportTo(path string) error {
	a, err := c.router.Export()
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := router.WriteArchive(f, a); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (c *Console) importFrom(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	a, err := router.ReadArchive(f)
	if err != nil {
		return err
	}
	return c.router.Import(a)
}
