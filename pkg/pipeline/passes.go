package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"volpreproc/internal/models"
	"volpreproc/pkg/blocks"
	"volpreproc/pkg/bufpool"
	"volpreproc/pkg/metrics"
	"volpreproc/pkg/reduce"
	"volpreproc/pkg/stream"
)

// consume hands every full buffer of pool to fn until end-of-stream. Once
// ctx is done or halt reports true, the reader is stopped and the remaining
// buffers are recycled unprocessed so the reader can finish.
func consume[E bufpool.Element](ctx context.Context, pool *bufpool.Pool[E], stop func(), halt func() bool, fn func(*bufpool.Buffer[E])) {
	stopped := false
	for {
		buf, ok := pool.NextFull()
		if !ok {
			return
		}
		if !stopped && (ctx.Err() != nil || halt()) {
			stop()
			stopped = true
		}
		if !stopped {
			fn(buf)
		}
		pool.ReturnEmpty(buf)
	}
}

func never() bool { return false }

var (
	errNoVoxels    = errors.New("raw file holds no voxels")
	errShortVolume = errors.New("raw file holds fewer voxels than the voxel dims")
)

// volumeMinMax streams the raw file once and fills r.volume with the
// volume-wide statistics.
func (r *runner[T]) volumeMinMax(ctx context.Context) error {
	path := r.p.cfg.Input.RawFile
	f, err := os.Open(path)
	if err != nil {
		return &Error{State: VolumeMinMax, Op: "open", Path: path, Err: err}
	}
	defer f.Close()
	timer := r.p.metrics.PassTimer(metrics.PassVolume)
	defer timer.ObserveDuration()

	reader := stream.NewReader[T](f, r.raw, r.logger)
	red := reduce.New[T](r.p.cfg.Processing.NumThreads, blocks.Decomposition{})
	r.stats = reduce.NewVolumeStats()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := reader.Run(gctx)
		r.p.metrics.AddBytesRead(metrics.PassVolume, n)
		if err != nil {
			return &Error{State: VolumeMinMax, Op: "read", Path: path, Err: err}
		}
		return nil
	})
	consume(ctx, r.raw, reader.Stop, never, func(buf *bufpool.Buffer[T]) {
		red.VolumeMinMax(buf, r.stats)
		r.p.metrics.BufferProcessed(metrics.PassVolume)
	})
	err = g.Wait()
	r.p.metrics.ObserveHighWater("raw", r.raw.HighWater())
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return &Error{State: VolumeMinMax, Op: "read", Path: path, Err: err}
	}

	if r.stats.Count == 0 {
		return &Error{State: VolumeMinMax, Op: "read", Path: path, Err: errNoVoxels}
	}
	// every block must see all of its voxels
	if want := r.p.cfg.Input.VoxelDims.Product(); r.stats.Count < want {
		return &Error{State: VolumeMinMax, Op: "read", Path: path,
			Err: fmt.Errorf("%w: %d of %d", errShortVolume, r.stats.Count, want)}
	}
	r.volume = models.NewVolume(r.p.cfg.Input.VoxelDims, models.Vec3{1, 1, 1}, r.p.cfg.Input.DataType)
	r.stats.Apply(r.volume)
	return nil
}

// blockStats streams the raw file into the per-block min, max and total of
// blks. With writeRmap set, every voxel is classified into the relevance
// map as well; the map is written to a temporary file and moved into place
// when the pass succeeds.
func (r *runner[T]) blockStats(ctx context.Context, vol *models.Volume, blks []models.FileBlock, writeRmap bool) (err error) {
	cfg := r.p.cfg
	path := cfg.Input.RawFile
	f, err := os.Open(path)
	if err != nil {
		return &Error{State: RelevanceAndBlockStats, Op: "open", Path: path, Err: err}
	}
	defer f.Close()
	timer := r.p.metrics.PassTimer(metrics.PassBlocks)
	defer timer.ObserveDuration()

	var (
		rmap    *os.File
		rmapTmp string
	)
	if writeRmap {
		rmapTmp = tempName(cfg.Output.RelevanceMap)
		rmap, err = os.Create(rmapTmp)
		if err != nil {
			return &Error{State: RelevanceAndBlockStats, Op: "create", Path: rmapTmp, Err: err}
		}
		r.temps = append(r.temps, rmapTmp)
	}

	red := reduce.New[T](cfg.Processing.NumThreads, blocks.NewDecomposition(vol))
	reader := stream.NewReader[T](f, r.raw, r.logger)
	halt := never

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := reader.Run(gctx)
		r.p.metrics.AddBytesRead(metrics.PassBlocks, n)
		if err != nil {
			return &Error{State: RelevanceAndBlockStats, Op: "read", Path: path, Err: err}
		}
		return nil
	})
	if writeRmap {
		writer := stream.NewWriter[float64](rmap, r.rel, r.logger)
		halt = writer.Failed
		g.Go(func() error {
			n, err := writer.Run()
			r.p.metrics.AddBytesWritten(n)
			if err != nil {
				return &Error{State: RelevanceAndBlockStats, Op: "write", Path: rmapTmp, Err: err}
			}
			return nil
		})
	}

	consume(ctx, r.raw, reader.Stop, halt, func(buf *bufpool.Buffer[T]) {
		red.BlockMinMax(buf, blks)
		if r.hist != nil {
			red.Histogram(buf, r.hist)
		}
		if writeRmap {
			out := r.rel.NextEmpty()
			red.Relevance(buf, out, r.opacity)
			r.rel.ReturnFull(out)
		}
		r.p.metrics.BufferProcessed(metrics.PassBlocks)
	})
	if writeRmap {
		r.rel.EndOfStream()
	}
	err = g.Wait()
	r.p.metrics.ObserveHighWater("raw", r.raw.HighWater())
	r.p.metrics.ObserveHighWater("relevance", r.rel.HighWater())
	if err == nil {
		if cerr := ctx.Err(); cerr != nil {
			err = &Error{State: RelevanceAndBlockStats, Op: "read", Path: path, Err: cerr}
		}
	}
	if !writeRmap {
		return err
	}

	if cerr := multierr.Combine(rmap.Sync(), rmap.Close()); cerr != nil && err == nil {
		err = &Error{State: RelevanceAndBlockStats, Op: "close", Path: rmapTmp, Err: cerr}
	}
	if err != nil {
		return err
	}
	if err := os.Rename(rmapTmp, cfg.Output.RelevanceMap); err != nil {
		return &Error{State: RelevanceAndBlockStats, Op: "rename", Path: cfg.Output.RelevanceMap, Err: err}
	}
	r.temps = r.temps[:0]
	r.logger.Info("relevance map written", zap.String("path", cfg.Output.RelevanceMap))
	return nil
}

// relevanceReduction streams the relevance map into the per-block empty
// voxel counts and relevance totals of blks.
func (r *runner[T]) relevanceReduction(ctx context.Context, vol *models.Volume, blks []models.FileBlock) error {
	cfg := r.p.cfg
	path := cfg.Output.RelevanceMap
	f, err := os.Open(path)
	if err != nil {
		return &Error{State: RelevanceReduction, Op: "open", Path: path, Err: err}
	}
	defer f.Close()
	timer := r.p.metrics.PassTimer(metrics.PassRelevance)
	defer timer.ObserveDuration()

	red := reduce.New[float64](cfg.Processing.NumThreads, blocks.NewDecomposition(vol))
	reader := stream.NewReader[float64](f, r.rel, r.logger)
	relevant := cfg.Processing.VoxelRelevance.Contains

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := reader.Run(gctx)
		r.p.metrics.AddBytesRead(metrics.PassRelevance, n)
		if err != nil {
			return &Error{State: RelevanceReduction, Op: "read", Path: path, Err: err}
		}
		return nil
	})
	consume(ctx, r.rel, reader.Stop, never, func(buf *bufpool.Buffer[float64]) {
		red.BlockEmpties(buf, blks, relevant)
		red.BlockRelevance(buf, blks)
		r.p.metrics.BufferProcessed(metrics.PassRelevance)
	})
	err = g.Wait()
	r.p.metrics.ObserveHighWater("relevance", r.rel.HighWater())
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return &Error{State: RelevanceReduction, Op: "read", Path: path, Err: err}
	}
	return nil
}
