package engine

import (
	"fmt"
	"time"
)

// Parameter is a typed setting applied to a control channel or port.
type Parameter interface {
	ParameterName() string
}

// SourceURI tells a reader what to open.
type SourceURI string

func (SourceURI) ParameterName() string { return "uri" }

// ClockReference marks a clock port as the reference clock.
type ClockReference bool

func (ClockReference) ParameterName() string { return "clock_reference" }

// ClockActive starts or stops the presentation clock.
type ClockActive bool

func (ClockActive) ParameterName() string { return "clock_active" }

// Seek repositions a reader.
type Seek struct {
	Offset time.Duration
}

func (Seek) ParameterName() string { return "seek" }

// Rotation is a display transform in 90 degree steps.
type Rotation int

const (
	Rotate0 Rotation = iota
	Rotate90
	Rotate180
	Rotate270
)

// Degrees returns the rotation angle.
func (r Rotation) Degrees() int {
	return int(r) * 90
}

// DisplayMode controls how a frame is fitted to the display.
type DisplayMode int

const (
	DisplayLetterbox DisplayMode = iota
	DisplayFill
)

func (m DisplayMode) String() string {
	if m == DisplayFill {
		return "fill"
	}
	return "letterbox"
}

// DisplayRegion configures where and how a renderer draws.
type DisplayRegion struct {
	Fullscreen bool
	Layer      int
	// DiscardLowerLayers makes the renderer opaque over lower layers.
	DiscardLowerLayers bool
	Mode               DisplayMode
	Transform          Rotation
}

func (DisplayRegion) ParameterName() string { return "display_region" }

func (r DisplayRegion) String() string {
	return fmt.Sprintf("layer=%d fullscreen=%t mode=%s rotate=%d",
		r.Layer, r.Fullscreen, r.Mode, r.Transform.Degrees())
}
