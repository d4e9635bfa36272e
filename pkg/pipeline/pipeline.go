// Package pipeline runs the out-of-core preprocessing of a raw volume into
// block index files.
//
// A run streams the raw file three times through a bounded buffer pool:
//
//  1. VolumeMinMax computes the volume-wide min, max and average.
//  2. RelevanceAndBlockStats accumulates per-block min, max and total and,
//     unless relevance is skipped, classifies every voxel through the
//     transfer function into the relevance map file.
//  3. RelevanceReduction streams the relevance map to compute each block's
//     ratio of visibility and its empty classification.
//
// Serialize then writes a binary and an ASCII index file. Pass 1 runs once
// per run; passes 2 and 3 and serialization run once per configured block
// count. The relevance map is written during the first block count only.
package pipeline

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/segmentio/ksuid"
	"go.uber.org/zap"

	"volpreproc/internal/models"
	"volpreproc/pkg/config"
	"volpreproc/pkg/indexfile"
	"volpreproc/pkg/metrics"
)

// State is a stage of a run.
type State int32

const (
	Idle State = iota
	VolumeMinMax
	RelevanceAndBlockStats
	RelevanceReduction
	Serialize
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case VolumeMinMax:
		return "volume-min-max"
	case RelevanceAndBlockStats:
		return "relevance-and-block-stats"
	case RelevanceReduction:
		return "relevance-reduction"
	case Serialize:
		return "serialize"
	case Done:
		return "done"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Error reports the state, operation and file of a failed run.
type Error struct {
	State State
	Op    string
	Path  string
	Err   error
}

func (e *Error) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %s: %v", e.State, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s %s: %v", e.State, e.Op, e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Result describes the index produced for one block count.
type Result struct {
	BlockCount  models.Vec3
	BinaryPath  string
	ASCIIPath   string
	Index       *indexfile.IndexFile
	Summary     indexfile.Summary
	EmptyBlocks int
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithMetrics records run metrics into m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// WithRunID tags every log line of the run with id instead of a fresh ksuid.
func WithRunID(id string) Option {
	return func(p *Pipeline) {
		p.runID = id
	}
}

// Pipeline orchestrates a preprocessing run.
type Pipeline struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *metrics.Metrics
	runID   string

	state atomic.Int32
}

// New returns a pipeline for cfg. The configuration must already be
// validated.
func New(cfg *config.Config, logger *zap.Logger, opts ...Option) *Pipeline {
	p := &Pipeline{cfg: cfg}
	for _, opt := range opts {
		opt(p)
	}
	if p.runID == "" {
		p.runID = ksuid.New().String()
	}
	if p.metrics == nil {
		p.metrics = metrics.New(nil)
	}
	p.logger = logger.Named("pipeline").With(zap.String("run", p.runID))
	return p
}

// State returns the current state of the run.
func (p *Pipeline) State() State {
	return State(p.state.Load())
}

// RunID returns the identifier attached to the run's log lines.
func (p *Pipeline) RunID() string {
	return p.runID
}

// Metrics returns the metrics the run records into.
func (p *Pipeline) Metrics() *metrics.Metrics {
	return p.metrics
}

func (p *Pipeline) setState(s State) {
	prev := State(p.state.Swap(int32(s)))
	if prev != s {
		p.logger.Debug("state transition", zap.Stringer("from", prev), zap.Stringer("to", s))
	}
}

// Run executes every pass for every configured block count and returns one
// Result per block count. On failure the state becomes Failed, no output
// file of the failing block count is left behind and the returned error
// is an *Error.
func (p *Pipeline) Run(ctx context.Context) (results []Result, err error) {
	defer func() {
		p.metrics.RunFinished(err)
		if err != nil {
			p.setState(Failed)
			p.logger.Error("run failed", zap.Error(err))
		}
		if path := p.cfg.Output.MetricsFile; path != "" {
			if werr := p.metrics.WriteTextfile(path); werr != nil {
				p.logger.Warn("cannot write metrics", zap.String("path", path), zap.Error(werr))
			}
		}
	}()

	switch p.cfg.Input.DataType {
	case models.Int8:
		return run[int8](ctx, p)
	case models.Uint8:
		return run[uint8](ctx, p)
	case models.Int16:
		return run[int16](ctx, p)
	case models.Uint16:
		return run[uint16](ctx, p)
	case models.Int32:
		return run[int32](ctx, p)
	case models.Uint32:
		return run[uint32](ctx, p)
	case models.Float32:
		return run[float32](ctx, p)
	case models.Float64:
		return run[float64](ctx, p)
	}
	return nil, &Error{State: p.State(), Op: "dispatch", Err: fmt.Errorf("%w: %v", models.ErrUnknownDataType, p.cfg.Input.DataType)}
}
