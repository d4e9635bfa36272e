package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/segmentio/ksuid"
	"go.uber.org/zap/zapcore"

	"volpreproc/internal/models"
	"volpreproc/pkg/config"
	"volpreproc/pkg/indexfile"
	"volpreproc/pkg/logging"
	"volpreproc/pkg/metrics"
	"volpreproc/pkg/pipeline"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run executes the command line in args and returns the process exit
// status. Deferred cleanup, including the final log flush, happens before
// the caller exits.
func run(args []string) int {
	fs := flag.NewFlagSet("volpreproc", flag.ContinueOnError)

	// Parse command line arguments
	configPath := fs.String("config", "volpreproc.yaml", "YAML configuration file (defaults are used if it does not exist)")
	initConfig := fs.Bool("init-config", false, "Write a default configuration file to -config and exit")

	rawFile := fs.String("input", "", "Raw volume file")
	datFile := fs.String("dat", "", "Optional .dat descriptor supplying dims, type and raw file")
	dataType := fs.String("type", "", "Element type: char, uchar, short, ushort, int, uint, float, double")
	var dims vec3Flag
	fs.Var(&dims, "dims", "Voxel dims as X,Y,Z")
	tfPath := fs.String("tf", "", "Transfer function file")

	outDir := fs.String("out", "", "Output directory for index files")
	prefix := fs.String("prefix", "", "Index file name prefix")
	rmap := fs.String("rmap", "", "Relevance map path")
	histogram := fs.String("histogram", "", "Write the raw value histogram to this .npy file")
	metricsFile := fs.String("metrics", "", "Write run metrics to this file in prometheus text format")
	ascii := fs.Bool("ascii", true, "Also write a JSON index file")

	var blockCounts vec3ListFlag
	fs.Var(&blockCounts, "blocks", "Block count as X,Y,Z; repeat to generate several indexes")
	bufferSize := fs.String("buffer", "", "Total streaming buffer budget, e.g. 64MiB")
	numBuffers := fs.Int("buffers", 0, "Number of raw buffers")
	numThreads := fs.Int("threads", 0, "Number of reduction workers (default: all available)")
	skipRelevance := fs.Bool("skip-relevance", false, "Skip relevance map generation and block culling")
	var threshold, voxelRelevance intervalFlag
	fs.Var(&threshold, "threshold", "Block rov interval min,max; blocks outside are marked empty")
	fs.Var(&voxelRelevance, "voxel-relevance", "Voxel relevance interval min,max; voxels outside count as empty")

	logPath := fs.String("log", "", "Log destination: stderr, stdout, /dev/null or a file")
	var logMode logging.FileMode
	fs.Var(&logMode, "log-mode", "Log file mode: append, truncate or rotate")
	logLevel := zapcore.InfoLevel
	fs.Var(&logLevel, "log-level", "Minimum log level")

	convert := fs.Bool("convert", false, "Convert a binary index file to JSON instead of generating one")
	convertIn := fs.String("in", "", "Binary index file to convert")
	printOut := fs.Bool("print", false, "With -convert, write JSON to stdout")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if *initConfig {
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			return fail(err)
		}
		fmt.Printf("Default configuration written to %s\n", *configPath)
		return 0
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return fail(err)
	}

	// Flags given on the command line override the configuration file
	var flagErr error
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "input":
			cfg.Input.RawFile = *rawFile
		case "dat":
			cfg.Input.DatFile = *datFile
		case "type":
			t, err := models.ParseDataType(*dataType)
			if err != nil {
				flagErr = err
			}
			cfg.Input.DataType = t
		case "dims":
			cfg.Input.VoxelDims = models.Vec3(dims)
		case "tf":
			cfg.TransferFunction = *tfPath
		case "out":
			cfg.Output.Dir = *outDir
		case "prefix":
			cfg.Output.Prefix = *prefix
		case "rmap":
			cfg.Output.RelevanceMap = *rmap
		case "histogram":
			cfg.Output.Histogram = *histogram
		case "metrics":
			cfg.Output.MetricsFile = *metricsFile
		case "ascii":
			cfg.Output.ASCII = *ascii
		case "blocks":
			cfg.Processing.BlockCounts = blockCounts
		case "buffer":
			cfg.Processing.BufferSize = *bufferSize
		case "buffers":
			cfg.Processing.NumBuffers = *numBuffers
		case "threads":
			cfg.Processing.NumThreads = *numThreads
		case "skip-relevance":
			cfg.Processing.SkipRelevance = *skipRelevance
		case "threshold":
			cfg.Processing.BlockThreshold = config.Interval(threshold)
		case "voxel-relevance":
			cfg.Processing.VoxelRelevance = config.Interval(voxelRelevance)
		case "log":
			cfg.Logging.Path = *logPath
		case "log-mode":
			cfg.Logging.Mode = logMode
		case "log-level":
			cfg.Logging.Level = logLevel
		}
	})
	if flagErr != nil {
		return fail(flagErr)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fail(err)
	}
	defer logger.Sync()

	if *convert {
		if err := runConvert(*convertIn, cfg.Output.Dir, *printOut); err != nil {
			return fail(err)
		}
		return 0
	}

	if err := cfg.ApplyDat(); err != nil {
		return fail(err)
	}
	if err := cfg.Validate(); err != nil {
		fs.Usage()
		return fail(err)
	}

	fmt.Println("================================")
	fmt.Println("OUT-OF-CORE VOLUME PREPROCESSOR")
	fmt.Println("================================")

	runID := ksuid.New().String()
	m := metrics.New(nil)
	p := pipeline.New(cfg, logger, pipeline.WithMetrics(m), pipeline.WithRunID(runID))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	budget, _ := cfg.BufferBytes()
	fmt.Printf("Run %s: %s %s volume %s, %d block grid(s), %s buffer budget\n",
		runID, cfg.Input.DataType, cfg.Input.VoxelDims, cfg.Input.RawFile,
		len(cfg.Processing.BlockCounts), humanize.IBytes(budget))
	startTime := time.Now()
	results, err := p.Run(ctx)
	if err != nil {
		var perr *pipeline.Error
		if errors.As(err, &perr) {
			return fail(fmt.Errorf("preprocessing failed in %s during %s of %q: %w", perr.State, perr.Op, perr.Path, perr.Err))
		}
		return fail(err)
	}
	processingTime := time.Since(startTime)

	fmt.Printf("\nPreprocessing completed successfully in %.2f seconds!\n", processingTime.Seconds())
	for _, res := range results {
		s := res.Summary
		fmt.Printf("\nBlocks %s:\n", res.BlockCount)
		fmt.Printf("- Binary index: %s\n", res.BinaryPath)
		if res.ASCIIPath != "" {
			fmt.Printf("- ASCII index: %s\n", res.ASCIIPath)
		}
		fmt.Printf("- Empty blocks: %d of %d\n", s.EmptyBlocks, s.Blocks)
		fmt.Printf("- ROV mean %.4f, stddev %.4f, median %.4f, range [%.4f, %.4f]\n",
			s.RovMean, s.RovStdDev, s.RovMedian, s.RovMin, s.RovMax)
	}
	return 0
}

// runConvert decodes a binary index file and writes its JSON form to
// <dir>/<name>.json, or to stdout.
func runConvert(in, dir string, toStdout bool) error {
	if in == "" {
		return errors.New("-convert needs -in")
	}
	ix, err := indexfile.Load(in)
	if err != nil {
		return err
	}
	if toStdout {
		return indexfile.WriteASCII(os.Stdout, ix)
	}
	name := strings.TrimSuffix(filepath.Base(in), filepath.Ext(in)) + ".json"
	out := filepath.Join(dir, name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	if err := indexfile.Save(out, ix, true); err != nil {
		return err
	}
	fmt.Printf("Converted %s to %s\n", in, out)
	return nil
}

func fail(err error) int {
	fmt.Fprintf(os.Stderr, "volpreproc: %v\n", err)
	return 1
}
