// Package logging builds the zap loggers handed to the pipeline and its
// background tasks.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// FileMode selects how a log file is managed between runs.
type FileMode string

const (
	// FileModeAppend appends to an existing log file. This is the default.
	FileModeAppend FileMode = "append"
	// FileModeTruncate truncates an existing log file.
	FileModeTruncate FileMode = "truncate"
	// FileModeRotate rotates the log file by size.
	FileModeRotate FileMode = "rotate"
)

// Set implements flag.Value.
func (m *FileMode) Set(s string) error {
	switch FileMode(s) {
	case FileModeAppend, "":
		*m = FileModeAppend
	case FileModeTruncate:
		*m = FileModeTruncate
	case FileModeRotate:
		*m = FileModeRotate
	default:
		return fmt.Errorf("invalid log file mode: %s", s)
	}
	return nil
}

func (m FileMode) String() string {
	return string(m)
}

// Config describes the log sink.
type Config struct {
	// Path is stdout, stderr, /dev/null or a file path.
	Path string `yaml:"path"`
	// Mode applies when Path is a file.
	Mode FileMode `yaml:"mode,omitempty"`
	// Level is the minimum enabled level.
	Level zapcore.Level `yaml:"level"`
	// JSON selects the JSON encoder instead of the console encoder.
	JSON bool `yaml:"json"`
}

// DefaultConfig logs info and above to stderr in console format.
func DefaultConfig() Config {
	return Config{
		Path:  "stderr",
		Mode:  FileModeAppend,
		Level: zapcore.InfoLevel,
	}
}

// New builds a logger from conf.
func New(conf Config) (*zap.Logger, error) {
	w, err := OpenFile(conf.Path, conf.Mode)
	if err != nil {
		return nil, err
	}
	core := zapcore.NewCore(encoder(conf.JSON), w, conf.Level)
	return zap.New(core, zap.AddStacktrace(zapcore.ErrorLevel)), nil
}

// OpenFile returns the write syncer for path.
func OpenFile(path string, mode FileMode) (zapcore.WriteSyncer, error) {
	switch path {
	case "stdout":
		return zapcore.Lock(os.Stdout), nil
	case "stderr", "":
		return zapcore.Lock(os.Stderr), nil
	case "/dev/null":
		return zapcore.AddSync(io.Discard), nil
	}
	switch mode {
	case FileModeRotate:
		return logrotate(path)
	case FileModeTruncate:
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0644)
		if err != nil {
			return nil, err
		}
		return zapcore.Lock(f), nil
	default:
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
		if err != nil {
			return nil, err
		}
		return zapcore.Lock(f), nil
	}
}

func logrotate(path string) (zapcore.WriteSyncer, error) {
	if _, err := os.Stat(filepath.Dir(path)); err != nil {
		return nil, err
	}
	// lumberjack.Logger is safe for concurrent use.
	return zapcore.AddSync(&lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	}), nil
}

func encoder(json bool) zapcore.Encoder {
	if json {
		conf := zap.NewProductionEncoderConfig()
		conf.CallerKey = ""
		return zapcore.NewJSONEncoder(conf)
	}
	conf := zap.NewDevelopmentEncoderConfig()
	conf.CallerKey = ""
	conf.EncodeTime = zapcore.ISO8601TimeEncoder
	return zapcore.NewConsoleEncoder(conf)
}
