// Package pipeline assembles the four processing stages and the three
// connections between them, and tears them down again.
package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/randomizedcoder/go-chain-player/internal/engine"
)

// DefaultLayer is the display layer the renderer draws on.
const DefaultLayer = 128

// Config holds the per-build settings.
type Config struct {
	// Rotation in degrees; reduced modulo 360.
	Rotation int
	// Layer is the renderer's display layer.
	Layer  int
	Logger *slog.Logger
}

// Hooks are the callbacks every stage and connection reports to.
type Hooks struct {
	// OnEvent receives every control-channel event from every stage.
	OnEvent engine.EventHandler
	// OnBuffer is called when a manual connection has buffers to pump.
	OnBuffer func()
}

// Pipeline is a Reader -> Decoder -> Scheduler -> Renderer chain.
type Pipeline struct {
	source string
	cfg    Config
	hooks  Hooks
	eng    engine.Engine
	logger *slog.Logger

	reader    engine.Component
	decoder   engine.Component
	scheduler engine.Component
	renderer  engine.Component

	readerDecoder     *Connection
	decoderScheduler  *Connection
	schedulerRenderer *Connection

	builtAt  time.Time
	torndown bool
}

// Build creates and enables every stage and connection for source. On
// failure the partially built pipeline is returned alongside a *BuildError
// and the caller must Teardown it.
func Build(eng engine.Engine, source string, cfg Config, hooks Hooks) (*Pipeline, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if hooks.OnEvent == nil {
		hooks.OnEvent = func(engine.Event) {}
	}
	if hooks.OnBuffer == nil {
		hooks.OnBuffer = func() {}
	}
	p := &Pipeline{
		source: source,
		cfg:    cfg,
		hooks:  hooks,
		eng:    eng,
		logger: cfg.Logger.With("source", source),
	}
	start := time.Now()
	if err := p.build(); err != nil {
		p.logger.Warn("pipeline_build_failed", "error", err)
		return p, err
	}
	p.builtAt = time.Now()
	p.logger.Debug("pipeline_built", "duration", p.builtAt.Sub(start))
	return p, nil
}

func (p *Pipeline) build() error {
	var err error

	if p.reader, err = p.createStage(engine.StageReader); err != nil {
		return err
	}
	if err := p.reader.Control().SetParameter(engine.SourceURI(p.source)); err != nil {
		return buildError("set reader uri", err)
	}

	if p.decoder, err = p.createStage(engine.StageDecoder); err != nil {
		return err
	}

	if p.scheduler, err = p.createStage(engine.StageScheduler); err != nil {
		return err
	}
	clock := p.scheduler.Clock()
	if clock == nil {
		return buildError("set clock reference", engine.ErrNotConnected)
	}
	if err := clock.SetParameter(engine.ClockReference(true)); err != nil {
		return buildError("set clock reference", err)
	}

	if p.renderer, err = p.createStage(engine.StageRenderer); err != nil {
		return err
	}
	if err := p.renderer.Input().SetParameter(p.displayRegion()); err != nil {
		return buildError("set display region", err)
	}

	if err := p.connectReader(); err != nil {
		return err
	}
	if p.decoderScheduler, err = NewConnection("decoder->scheduler",
		p.decoder.Output(), p.scheduler.Input(), ModeTunnelled, p.hooks.OnBuffer, p.cfg.Logger); err != nil {
		return buildError("connect decoder", err)
	}
	if p.schedulerRenderer, err = NewConnection("scheduler->renderer",
		p.scheduler.Output(), p.renderer.Input(), ModeTunnelled, p.hooks.OnBuffer, p.cfg.Logger); err != nil {
		return buildError("connect scheduler", err)
	}

	return p.enableConnections()
}

// createStage creates a component, enables its control channel and then
// the component itself.
func (p *Pipeline) createStage(kind engine.StageKind) (engine.Component, error) {
	c, err := p.eng.NewComponent(kind)
	if err != nil {
		return nil, buildError("create "+kind.String(), err)
	}
	if err := c.Control().Enable(p.hooks.OnEvent); err != nil {
		return c, buildError("enable "+kind.String()+" control", err)
	}
	if err := c.Enable(); err != nil {
		return c, buildError("enable "+kind.String(), err)
	}
	return c, nil
}

func (p *Pipeline) connectReader() error {
	c, err := NewConnection("reader->decoder",
		p.reader.Output(), p.decoder.Input(), ModeManual, p.hooks.OnBuffer, p.cfg.Logger)
	if err != nil {
		return buildError("connect reader", err)
	}
	c.MarkDiscontinuity()
	p.readerDecoder = c
	return nil
}

func (p *Pipeline) enableConnections() error {
	for _, c := range p.Connections() {
		if err := c.Enable(); err != nil {
			return buildError("enable "+c.Name(), err)
		}
	}
	return nil
}

func (p *Pipeline) displayRegion() engine.DisplayRegion {
	return engine.DisplayRegion{
		Fullscreen:         true,
		Layer:              p.cfg.Layer,
		DiscardLowerLayers: true,
		Mode:               engine.DisplayLetterbox,
		Transform:          TransformFor(p.cfg.Rotation),
	}
}

// TransformFor maps a rotation in degrees to a display transform. Anything
// other than a multiple of 90 falls back to no rotation.
func TransformFor(degrees int) engine.Rotation {
	switch degrees % 360 {
	case 90:
		return engine.Rotate90
	case 180:
		return engine.Rotate180
	case 270:
		return engine.Rotate270
	default:
		return engine.Rotate0
	}
}

// Source returns the URI the pipeline was built for.
func (p *Pipeline) Source() string { return p.source }

// BuiltAt returns when the build completed.
func (p *Pipeline) BuiltAt() time.Time { return p.builtAt }

// Stage returns the component of kind, or nil if it was never created.
func (p *Pipeline) Stage(kind engine.StageKind) engine.Component {
	switch kind {
	case engine.StageReader:
		return p.reader
	case engine.StageDecoder:
		return p.decoder
	case engine.StageScheduler:
		return p.scheduler
	case engine.StageRenderer:
		return p.renderer
	}
	return nil
}

// Stages returns the created stages in chain order.
func (p *Pipeline) Stages() []engine.Component {
	var out []engine.Component
	for _, c := range []engine.Component{p.reader, p.decoder, p.scheduler, p.renderer} {
		if c != nil {
			out = append(out, c)
		}
	}
	return out
}

// Connections returns the created connections in chain order.
func (p *Pipeline) Connections() []*Connection {
	var out []*Connection
	for _, c := range []*Connection{p.readerDecoder, p.decoderScheduler, p.schedulerRenderer} {
		if c != nil {
			out = append(out, c)
		}
	}
	return out
}

// ReaderConnection returns the manual reader -> decoder connection.
func (p *Pipeline) ReaderConnection() *Connection { return p.readerDecoder }

// Pump runs one pump pass over every connection in chain order and
// returns the number of buffers moved.
func (p *Pipeline) Pump() (int, error) {
	total := 0
	for _, c := range p.Connections() {
		n, err := c.Pump()
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// SetClockActive starts or stops the scheduler clock.
func (p *Pipeline) SetClockActive(active bool) error {
	if p.scheduler == nil || p.scheduler.Clock() == nil {
		return engine.ErrNotConnected
	}
	return p.scheduler.Clock().SetParameter(engine.ClockActive(active))
}

// Enable enables every stage and then every connection, reader side first.
func (p *Pipeline) Enable() error {
	for _, s := range p.Stages() {
		if !s.IsEnabled() {
			if err := s.Enable(); err != nil {
				return fmt.Errorf("enable %s: %w", s.Name(), err)
			}
		}
	}
	for _, c := range p.Connections() {
		if err := c.Enable(); err != nil {
			return err
		}
	}
	return nil
}

// Disable disables the connections and then the stages, renderer side
// first. Errors are logged and skipped.
func (p *Pipeline) Disable() {
	if p == nil {
		return
	}
	for _, c := range p.Connections() {
		if err := c.Disable(); err != nil {
			p.logger.Debug("connection_disable_failed", "connection", c.Name(), "error", err)
		}
	}
	p.disableStages()
}

func (p *Pipeline) disableStages() {
	stages := p.Stages()
	for i := len(stages) - 1; i >= 0; i-- {
		s := stages[i]
		if !s.IsEnabled() {
			continue
		}
		if err := s.Disable(); err != nil {
			p.logger.Debug("stage_disable_failed", "stage", s.Name(), "error", err)
		}
	}
}

// Reseek rewinds the reader to the start of the current source without
// rebuilding the decoder, scheduler or renderer. The reader connection is
// recreated and the next buffer it forwards is tagged as a discontinuity.
func (p *Pipeline) Reseek() error {
	if err := p.readerDecoder.Destroy(); err != nil {
		p.logger.Debug("connection_destroy_failed", "connection", p.readerDecoder.Name(), "error", err)
	}
	p.readerDecoder = nil

	for _, c := range p.Connections() {
		if err := c.Disable(); err != nil {
			return fmt.Errorf("reseek: %w", err)
		}
	}
	p.disableStages()

	if err := p.reader.Control().SetParameter(engine.Seek{}); err != nil {
		return fmt.Errorf("reseek: seek reader: %w", err)
	}
	if err := p.connectReader(); err != nil {
		return err
	}
	if err := p.Enable(); err != nil {
		return fmt.Errorf("reseek: %w", err)
	}
	p.logger.Debug("pipeline_reseeked")
	return nil
}

// ApplyFormatChange hands a format-change notice to every connection.
func (p *Pipeline) ApplyFormatChange(f engine.Format) error {
	var errs []error
	for _, c := range p.Connections() {
		if err := c.FormatChanged(f); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Teardown destroys the connections and stages, renderer side first.
// It is best effort, safe to call more than once and safe on a nil
// pipeline.
func (p *Pipeline) Teardown() {
	if p == nil || p.torndown {
		return
	}
	p.torndown = true

	conns := p.Connections()
	for i := len(conns) - 1; i >= 0; i-- {
		if err := conns[i].Destroy(); err != nil {
			p.logger.Debug("connection_destroy_failed", "connection", conns[i].Name(), "error", err)
		}
	}

	stages := p.Stages()
	for i := len(stages) - 1; i >= 0; i-- {
		s := stages[i]
		if s.IsEnabled() {
			if err := s.Disable(); err != nil {
				p.logger.Debug("stage_disable_failed", "stage", s.Name(), "error", err)
			}
		}
		if ctl := s.Control(); ctl.IsEnabled() {
			if err := ctl.Disable(); err != nil {
				p.logger.Debug("control_disable_failed", "stage", s.Name(), "error", err)
			}
		}
		if err := s.Destroy(); err != nil {
			p.logger.Debug("stage_destroy_failed", "stage", s.Name(), "error", err)
		}
	}
	p.logger.Debug("pipeline_torn_down")
}
