package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"volpreproc/internal/models"
	"volpreproc/pkg/blocks"
	"volpreproc/pkg/bufpool"
	"volpreproc/pkg/indexfile"
	"volpreproc/pkg/reduce"
	"volpreproc/pkg/tfunc"
)

// runner carries the state of one run over raw elements of type T.
type runner[T bufpool.Element] struct {
	p      *Pipeline
	logger *zap.Logger

	raw *bufpool.Pool[T]
	rel *bufpool.Pool[float64]

	tf      *tfunc.TransferFunction
	stats   *reduce.VolumeStats
	volume  *models.Volume
	opacity *tfunc.OpacityFunction[T]
	hist    *reduce.Histogram

	// temps are files to remove if the current block count fails.
	temps []string
}

func run[T bufpool.Element](ctx context.Context, p *Pipeline) ([]Result, error) {
	cfg := p.cfg
	r := &runner[T]{p: p, logger: p.logger}
	p.setState(Idle)

	budget, err := cfg.BufferBytes()
	if err != nil {
		return nil, &Error{State: Idle, Op: "plan buffers", Err: err}
	}
	elemSize := cfg.Input.DataType.Size()
	sizing, err := bufpool.Plan(budget, cfg.Processing.NumBuffers, elemSize)
	if err != nil {
		return nil, &Error{State: Idle, Op: "plan buffers", Err: err}
	}
	r.raw = bufpool.NewPool[T](sizing.RawBuffers, sizing.Capacity)
	r.rel = bufpool.NewPool[float64](sizing.RelevanceBuffers, sizing.Capacity)
	r.raw.Allocate()
	r.rel.Allocate()
	r.logger.Info("buffers allocated",
		zap.Stringer("sizing", sizing),
		zap.String("raw", humanize.IBytes(sizing.RawBytes(elemSize))),
		zap.String("relevance", humanize.IBytes(sizing.RelevanceBytes())))

	if !cfg.Processing.SkipRelevance {
		tf, err := tfunc.Load(cfg.TransferFunction)
		if err != nil {
			return nil, &Error{State: Idle, Op: "load transfer function", Path: cfg.TransferFunction, Err: err}
		}
		r.tf = tf
		r.logger.Info("transfer function loaded", zap.Int("knots", tf.Len()))
	}

	start := time.Now()
	r.logger.Info("Step 1: computing volume statistics",
		zap.String("raw", cfg.Input.RawFile),
		zap.Stringer("dims", cfg.Input.VoxelDims),
		zap.Stringer("type", cfg.Input.DataType))
	p.setState(VolumeMinMax)
	if err := r.volumeMinMax(ctx); err != nil {
		return nil, err
	}
	r.logger.Info("volume statistics",
		zap.Float64("min", r.volume.Min),
		zap.Float64("max", r.volume.Max),
		zap.Float64("avg", r.volume.Avg),
		zap.Uint64("voxels", r.volume.Count))
	if want := cfg.Input.VoxelDims.Product(); r.volume.Count > want {
		r.logger.Warn("raw file is longer than the voxel dims, trailing voxels are ignored by blocks",
			zap.Uint64("voxels", r.volume.Count), zap.Uint64("expected", want))
	}
	if r.tf != nil {
		r.opacity = tfunc.NewOpacityFunction[T](r.tf, r.volume.Min, r.volume.Max)
	}

	var results []Result
	for i, bc := range cfg.Processing.BlockCounts {
		res, err := r.blockCount(ctx, bc, i == 0)
		if err != nil {
			r.removeTemps()
			return results, err
		}
		results = append(results, res)
	}
	p.setState(Done)
	r.logger.Info("run complete",
		zap.Int("indexes", len(results)),
		zap.Duration("elapsed", time.Since(start)))
	return results, nil
}

// blockCount runs passes 2 and 3 and serialization for one block grid.
func (r *runner[T]) blockCount(ctx context.Context, bc models.Vec3, first bool) (Result, error) {
	cfg := r.p.cfg
	logger := r.logger.With(zap.Stringer("blocks", bc))
	r.temps = r.temps[:0]

	vol := models.NewVolume(cfg.Input.VoxelDims, bc, cfg.Input.DataType)
	r.stats.Apply(vol)
	blks := blocks.NewBlocks(vol, cfg.Input.DataType.Size())
	if rem := cfg.Input.VoxelDims.Product() - vol.BlockDims.Product()*bc.Product(); rem > 0 {
		logger.Debug("voxels outside the block grid", zap.Uint64("voxels", rem))
	}

	writeRmap := first && r.opacity != nil
	if first && cfg.Output.Histogram != "" {
		r.hist = reduce.NewHistogram(reduce.DefaultBuckets, vol.Min, vol.Max)
	} else {
		r.hist = nil
	}

	logger.Info("Step 2: computing block statistics", zap.Bool("relevanceMap", writeRmap))
	r.p.setState(RelevanceAndBlockStats)
	if err := r.blockStats(ctx, vol, blks, writeRmap); err != nil {
		return Result{}, err
	}
	if r.hist != nil {
		if err := writeHistogram(cfg.Output.Histogram, r.hist); err != nil {
			return Result{}, &Error{State: RelevanceAndBlockStats, Op: "write histogram", Path: cfg.Output.Histogram, Err: err}
		}
		logger.Info("histogram written", zap.String("path", cfg.Output.Histogram))
	}

	var empty int
	if r.opacity != nil {
		logger.Info("Step 3: reducing relevance map", zap.String("rmap", cfg.Output.RelevanceMap))
		r.p.setState(RelevanceReduction)
		if err := r.relevanceReduction(ctx, vol, blks); err != nil {
			return Result{}, err
		}
		empty = blocks.FinalizeRelevance(vol, blks, cfg.Processing.BlockThreshold.Min, cfg.Processing.BlockThreshold.Max)
		logger.Info("relevance reduced",
			zap.Float64("rovMin", vol.RovMin),
			zap.Float64("rovMax", vol.RovMax),
			zap.Uint64("emptyVoxels", vol.EmptyVoxels),
			zap.Int("emptyBlocks", empty))
	} else {
		vol.RovMin, vol.RovMax = 0, 0
		logger.Info("Step 3: skipped, relevance disabled")
	}
	r.p.metrics.SetEmptyBlocks(bc.String(), empty)

	logger.Info("Step 4: writing index files")
	r.p.setState(Serialize)
	blocks.FinalizeAverages(blks)
	ix := indexfile.New(vol, blks)
	res, err := r.serialize(bc, ix)
	if err != nil {
		return Result{}, err
	}
	res.EmptyBlocks = empty
	res.Summary = indexfile.Summarize(ix)
	logger.Info("index written",
		zap.String("binary", res.BinaryPath),
		zap.String("ascii", res.ASCIIPath),
		zap.Int("blocks", res.Summary.Blocks),
		zap.Int("emptyBlocks", res.Summary.EmptyBlocks),
		zap.Float64("rovMean", res.Summary.RovMean),
		zap.Float64("rovMedian", res.Summary.RovMedian),
		zap.Float64("avgMean", res.Summary.AvgMean))
	return res, nil
}

// serialize writes ix to temporary files and renames them into place once
// both are complete.
func (r *runner[T]) serialize(bc models.Vec3, ix *indexfile.IndexFile) (Result, error) {
	cfg := r.p.cfg
	if err := os.MkdirAll(cfg.Output.Dir, 0755); err != nil {
		return Result{}, &Error{State: Serialize, Op: "create output dir", Path: cfg.Output.Dir, Err: err}
	}
	base := indexBase(cfg.Output.Dir, cfg.Output.Prefix, bc, cfg.Processing.BlockThreshold.Min, cfg.Processing.BlockThreshold.Max)
	res := Result{BlockCount: bc, Index: ix, BinaryPath: base + ".bin"}
	if cfg.Output.ASCII {
		res.ASCIIPath = base + ".json"
	}

	type output struct {
		path  string
		ascii bool
	}
	outputs := []output{{res.BinaryPath, false}}
	if res.ASCIIPath != "" {
		outputs = append(outputs, output{res.ASCIIPath, true})
	}
	for _, out := range outputs {
		tmp := tempName(out.path)
		r.temps = append(r.temps, tmp)
		if err := indexfile.Save(tmp, ix, out.ascii); err != nil {
			return Result{}, &Error{State: Serialize, Op: "write", Path: tmp, Err: err}
		}
	}
	for _, out := range outputs {
		if err := os.Rename(tempName(out.path), out.path); err != nil {
			return Result{}, &Error{State: Serialize, Op: "rename", Path: out.path, Err: err}
		}
	}
	r.temps = r.temps[:0]
	return res, nil
}

func (r *runner[T]) removeTemps() {
	for _, path := range r.temps {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			r.logger.Warn("cannot remove temporary file", zap.String("path", path), zap.Error(err))
		}
	}
	r.temps = r.temps[:0]
}

func tempName(path string) string {
	return fmt.Sprintf("%s.tmp", path)
}
