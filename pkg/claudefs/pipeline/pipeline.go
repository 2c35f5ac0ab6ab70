// Package pipeline implements the ordered, direction-filtered middleware
// pipeline that inbound and outbound requests pass through before reaching
// the storage engine or the wire. Each stage is a small capability object
// (process(request) -> action, name()) stored in an ordered slice; stages
// are swapped by id rather than by position, mirroring the way the NFS
// adapter's middleware package composes auth extraction ahead of dispatch.
package pipeline

import (
	"time"

	"github.com/marmos91/dittofs/internal/logger"
	claudefserrors "github.com/marmos91/dittofs/pkg/claudefs/errors"
)

// Direction is the traffic direction a stage applies to.
type Direction int

const (
	Inbound Direction = iota
	Outbound
)

// Action is the verdict a stage returns after processing a request.
type Action int

const (
	// Continue proceeds to the next matching stage.
	Continue Action = iota
	// Skip accepts the request and stops iterating without counting a
	// rejection.
	Skip
	// Reject stops iterating and counts a rejection.
	Reject
)

// Request is the mutable payload a pipeline processes. Stages may mutate
// Payload and Metadata in place; the next stage observes the mutation.
type Request struct {
	Payload  []byte
	Metadata map[string]string
}

// Result is a stage's verdict, with an optional reason when Action is
// Reject.
type Result struct {
	Action Action
	Reason string
}

// Stage is the capability every pipeline component implements.
type Stage interface {
	Name() string
	Process(req *Request) Result
}

// StageConfig wraps a Stage with its scheduling metadata.
type StageConfig struct {
	ID        uint64
	Name      string
	Order     int
	Enabled   bool
	Direction Direction
	Stage     Stage
}

// StageTiming records how long a single stage took to process one request.
type StageTiming struct {
	StageID   uint64
	StageName string
	Duration  time.Duration
}

// ExecutionResult summarizes one call to Execute.
type ExecutionResult struct {
	FinalAction Action
	RejectedBy  string
	Reason      string
	Timings     []StageTiming
}

// Config configures a Pipeline's payload limits and timing capture.
type Config struct {
	MaxPayloadBytes int
	CaptureTimings  bool
}

// DefaultConfig returns the pipeline defaults.
func DefaultConfig() Config {
	return Config{MaxPayloadBytes: 64 << 20, CaptureTimings: false}
}

// Pipeline holds an ordered list of stages and executes requests against
// them in order-ascending, direction-matching sequence.
type Pipeline struct {
	config Config
	stages []StageConfig
}

// New creates an empty pipeline.
func New(config Config) *Pipeline {
	return &Pipeline{config: config}
}

// AddStage appends a stage to the pipeline. Stages are re-sorted by Order
// ascending after every addition.
func (p *Pipeline) AddStage(sc StageConfig) {
	p.stages = append(p.stages, sc)
	p.sortStages()
	logger.Debug("pipeline stage added", "id", sc.ID, "name", sc.Name, "order", sc.Order, "direction", sc.Direction)
}

// RemoveStage removes the stage with the given id, if present.
func (p *Pipeline) RemoveStage(id uint64) {
	for i, sc := range p.stages {
		if sc.ID == id {
			p.stages = append(p.stages[:i], p.stages[i+1:]...)
			return
		}
	}
}

// SetEnabled toggles a stage's enabled flag by id.
func (p *Pipeline) SetEnabled(id uint64, enabled bool) {
	for i := range p.stages {
		if p.stages[i].ID == id {
			p.stages[i].Enabled = enabled
			return
		}
	}
}

func (p *Pipeline) sortStages() {
	// Stable insertion sort: the pipeline is small and reordered rarely,
	// and a stable sort preserves insertion order for equal Order values.
	for i := 1; i < len(p.stages); i++ {
		for j := i; j > 0 && p.stages[j].Order < p.stages[j-1].Order; j-- {
			p.stages[j], p.stages[j-1] = p.stages[j-1], p.stages[j]
		}
	}
}

// Execute runs req through every enabled stage matching direction, in
// order-ascending sequence.
func (p *Pipeline) Execute(req *Request, direction Direction) (*ExecutionResult, error) {
	if len(req.Payload) > p.config.MaxPayloadBytes {
		return nil, claudefserrors.New(claudefserrors.KindProtocol, claudefserrors.CodePayloadTooLarge, "Pipeline.Execute")
	}

	result := &ExecutionResult{FinalAction: Continue}

	for _, sc := range p.stages {
		if !sc.Enabled || sc.Direction != direction {
			continue
		}

		var start time.Time
		if p.config.CaptureTimings {
			start = time.Now()
		}

		verdict := sc.Stage.Process(req)

		if p.config.CaptureTimings {
			result.Timings = append(result.Timings, StageTiming{
				StageID:   sc.ID,
				StageName: sc.Name,
				Duration:  time.Since(start),
			})
		}

		switch verdict.Action {
		case Skip:
			result.FinalAction = Skip
			return result, nil
		case Reject:
			result.FinalAction = Reject
			result.RejectedBy = sc.Name
			result.Reason = verdict.Reason
			logger.Warn("pipeline stage rejected request", "stage", sc.Name, "reason", verdict.Reason)
			return result, nil
		}
	}

	return result, nil
}

// Stages returns a snapshot of the currently configured stages.
func (p *Pipeline) Stages() []StageConfig {
	out := make([]StageConfig, len(p.stages))
	copy(out, p.stages)
	return out
}
