// Package enginetest provides a synchronous, recording engine.Engine for
// tests that need to assert call ordering or inject failures.
//
// Every operation is appended to a shared Log as a short string such as
// "enable reader" or "set scheduler.clock clock_reference". FailOn makes a
// given call return an error after it has been logged.
package enginetest

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/randomizedcoder/go-chain-player/internal/engine"
)

// Log records calls in order. Safe for concurrent use.
type Log struct {
	mu    sync.Mutex
	calls []string
}

// Add appends a formatted call.
func (l *Log) Add(format string, args ...any) {
	l.mu.Lock()
	l.calls = append(l.calls, fmt.Sprintf(format, args...))
	l.mu.Unlock()
}

// Calls returns a copy of the log.
func (l *Log) Calls() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.calls)
}

// Matching returns the calls that start with prefix.
func (l *Log) Matching(prefix string) []string {
	var out []string
	for _, c := range l.Calls() {
		if strings.HasPrefix(c, prefix) {
			out = append(out, c)
		}
	}
	return out
}

// Index returns the position of the first call equal to call, or -1.
func (l *Log) Index(call string) int {
	return slices.Index(l.Calls(), call)
}

// Reset clears the log.
func (l *Log) Reset() {
	l.mu.Lock()
	l.calls = nil
	l.mu.Unlock()
}

// Engine is the recording fake.
type Engine struct {
	Log *Log
	// Requirements is reported by every port created after it is set.
	Requirements engine.BufferRequirements
	// OutputFormat is reported by every output port.
	OutputFormat engine.Format

	mu         sync.Mutex
	failures   map[string]error
	components []*Component
}

// New returns an engine with two 16-byte buffers per port.
func New() *Engine {
	return &Engine{
		Log:          &Log{},
		Requirements: engine.BufferRequirements{Num: 2, Size: 16},
		OutputFormat: engine.Format{Encoding: "fake"},
		failures:     make(map[string]error),
	}
}

// FailOn makes call return err. The call is still logged.
func (e *Engine) FailOn(call string, err error) {
	e.mu.Lock()
	e.failures[call] = err
	e.mu.Unlock()
}

func (e *Engine) call(format string, args ...any) error {
	c := fmt.Sprintf(format, args...)
	e.Log.Add("%s", c)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.failures[c]
}

// NewComponent implements engine.Engine.
func (e *Engine) NewComponent(kind engine.StageKind) (engine.Component, error) {
	name := kind.String()
	if err := e.call("create %s", name); err != nil {
		return nil, err
	}
	c := &Component{eng: e, name: name, kind: kind}
	c.control = &Control{comp: c, name: name + ".control"}
	switch kind {
	case engine.StageReader:
		c.output = c.newPort("output", e.OutputFormat)
	case engine.StageDecoder:
		c.input = c.newPort("input", engine.Format{})
		c.output = c.newPort("output", e.OutputFormat)
	case engine.StageScheduler:
		c.input = c.newPort("input", engine.Format{})
		c.output = c.newPort("output", e.OutputFormat)
		c.clock = c.newPort("clock", engine.Format{})
	case engine.StageRenderer:
		c.input = c.newPort("input", engine.Format{})
	}
	e.mu.Lock()
	e.components = append(e.components, c)
	e.mu.Unlock()
	return c, nil
}

// Components returns every component created, oldest first.
func (e *Engine) Components() []*Component {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.components)
}

// Latest returns the most recently created component of kind, or nil.
func (e *Engine) Latest(kind engine.StageKind) *Component {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := len(e.components) - 1; i >= 0; i-- {
		if e.components[i].kind == kind {
			return e.components[i]
		}
	}
	return nil
}

// Component is a fake processing stage.
type Component struct {
	eng  *Engine
	name string
	kind engine.StageKind

	mu        sync.Mutex
	enabled   bool
	destroyed bool

	control              *Control
	input, output, clock *Port
}

func (c *Component) newPort(dir string, f engine.Format) *Port {
	return &Port{
		comp:   c,
		name:   c.name + "." + dir,
		format: f,
		req:    c.eng.Requirements,
	}
}

func (c *Component) Name() string                  { return c.name }
func (c *Component) Kind() engine.StageKind         { return c.kind }
func (c *Component) Control() engine.ControlChannel { return c.control }

func (c *Component) Input() engine.Port  { return portOrNil(c.input) }
func (c *Component) Output() engine.Port { return portOrNil(c.output) }
func (c *Component) Clock() engine.Port  { return portOrNil(c.clock) }

// InputPort, OutputPort, ClockPort and ControlChannel return the concrete
// fakes so tests can drive them.
func (c *Component) InputPort() *Port         { return c.input }
func (c *Component) OutputPort() *Port        { return c.output }
func (c *Component) ClockPort() *Port         { return c.clock }
func (c *Component) ControlChannel() *Control { return c.control }

func portOrNil(p *Port) engine.Port {
	if p == nil {
		return nil
	}
	return p
}

func (c *Component) Enable() error {
	if err := c.eng.call("enable %s", c.name); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return engine.ErrDestroyed
	}
	c.enabled = true
	return nil
}

func (c *Component) Disable() error {
	if err := c.eng.call("disable %s", c.name); err != nil {
		return err
	}
	c.mu.Lock()
	c.enabled = false
	c.mu.Unlock()
	return nil
}

func (c *Component) IsEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

func (c *Component) Destroy() error {
	if err := c.eng.call("destroy %s", c.name); err != nil {
		return err
	}
	c.mu.Lock()
	c.destroyed = true
	c.enabled = false
	c.mu.Unlock()
	return nil
}

// Destroyed reports whether Destroy has been called.
func (c *Component) Destroyed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.destroyed
}

// Control is a fake control channel.
type Control struct {
	comp *Component
	name string

	mu      sync.Mutex
	handler engine.EventHandler
	params  []engine.Parameter
}

func (c *Control) Name() string { return c.name }

func (c *Control) Enable(h engine.EventHandler) error {
	if err := c.comp.eng.call("enable %s", c.name); err != nil {
		return err
	}
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()
	return nil
}

func (c *Control) Disable() error {
	if err := c.comp.eng.call("disable %s", c.name); err != nil {
		return err
	}
	c.mu.Lock()
	c.handler = nil
	c.mu.Unlock()
	return nil
}

func (c *Control) IsEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handler != nil
}

func (c *Control) SetParameter(p engine.Parameter) error {
	if err := c.comp.eng.call("set %s %s", c.name, p.ParameterName()); err != nil {
		return err
	}
	c.mu.Lock()
	c.params = append(c.params, p)
	c.mu.Unlock()
	return nil
}

// Params returns every parameter applied, oldest first.
func (c *Control) Params() []engine.Parameter {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.params)
}

// Emit delivers ev to the installed handler, filling in Source. It returns
// false if the channel is not enabled.
func (c *Control) Emit(ev engine.Event) bool {
	c.mu.Lock()
	h := c.handler
	c.mu.Unlock()
	if h == nil {
		return false
	}
	if ev.Source == "" {
		ev.Source = c.comp.name
	}
	h(ev)
	return true
}
