package util

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// log output formats
const (
	LogFormatConsole = "console"
	LogFormatJSON    = "json"
)

// LogFile is the name of the log file written under LogOptions.Dir
const LogFile = "orgkeeper.log"

var ErrUnknownLogFormat = errors.New("unknown log format")

// LogOptions describes how the process logger is built
type LogOptions struct {
	// Level is a zap level name, info when empty
	Level string

	// Format of the stderr output, console or json
	Format string

	// Dir receives a JSON log file when set
	Dir string

	// Debug overrides Level
	Debug bool
}

// NewLogger builds the process logger: everything at or above the
// configured level goes to stderr, and also to Dir/orgkeeper.log when
// a directory is given
func NewLogger(opts LogOptions) (*zap.Logger, error) {
	level := zapcore.InfoLevel

	if name := strings.TrimSpace(opts.Level); name != "" {
		if err := level.UnmarshalText([]byte(strings.ToLower(name))); err != nil {
			return nil, errors.Wrapf(err, "invalid log level %q", opts.Level)
		}
	}

	if opts.Debug {
		level = zapcore.DebugLevel
	}

	var encoder zapcore.Encoder

	switch strings.ToLower(strings.TrimSpace(opts.Format)) {
	case "", LogFormatConsole:
		encoder = zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	case LogFormatJSON:
		encoder = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	default:
		return nil, errors.Wrap(ErrUnknownLogFormat, opts.Format)
	}

	cores := []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.Lock(zapcore.AddSync(os.Stderr)), level),
	}

	if dir := strings.TrimSpace(opts.Dir); dir != "" {
		dir, err := ExpandPath(dir)
		if err != nil {
			return nil, err
		}

		if err = CreateDirectoryIfNotExists(dir, 0755); err != nil {
			return nil, err
		}

		path := filepath.Join(dir, LogFile)

		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to open log file %s", path)
		}

		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
			zapcore.Lock(zapcore.AddSync(f)),
			level,
		))
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller()), nil
}
