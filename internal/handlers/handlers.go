package handlers

import (
	"time"

	"media-compressor/internal/pipeline"
	"media-compressor/internal/transcoder"
)

// Pipeline is the part of the pipeline controller the API drives.
type Pipeline interface {
	StartRun(trigger pipeline.Trigger) error
	RequestStop() bool
	StartClearIndex() error
	StartClearOutputDirs() error
	Status() pipeline.Status
}

// Schedule reports the scheduled run, if any.
type Schedule interface {
	Expr() string
	NextRunAt() *time.Time
}

// Handlers contains all HTTP handlers
type Handlers struct {
	pipeline  Pipeline
	schedule  Schedule
	tools     []transcoder.ToolStatus
	startTime time.Time
}

// New creates a new Handlers instance. schedule may be nil; tools is the
// result of the startup tool check.
func New(p Pipeline, schedule Schedule, tools []transcoder.ToolStatus) *Handlers {
	return &Handlers{
		pipeline:  p,
		schedule:  schedule,
		tools:     tools,
		startTime: time.Now(),
	}
}
