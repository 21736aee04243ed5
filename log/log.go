// Package log provides the process-wide structured logger, a thin wrapper
// around zerolog with formatted and key-value helper functions.
package log

import (
	"cmp"
	"fmt"
	"io"
	"os"
	"path"
	"runtime/debug"
	"sync"

	"github.com/rs/zerolog"
)

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"

	// RFC3339Milli is like time.RFC3339Nano but with 3 fixed-width decimals.
	RFC3339Milli = "2006-01-02T15:04:05.000Z07:00"
)

var (
	log   zerolog.Logger
	logMu sync.RWMutex
)

func init() {
	// Allow overriding the default log level via $LOG_LEVEL, so that the
	// environment variable can be set globally even when running tests.
	// Always initializing the logger also avoids panics when logging before
	// Init has been called.
	Init(cmp.Or(os.Getenv("LOG_LEVEL"), "error"), "stderr")
}

// Logger provides access to the global logger (zerolog).
func Logger() *zerolog.Logger {
	logger := getLogger()
	return &logger
}

func getLogger() zerolog.Logger {
	logMu.RLock()
	defer logMu.RUnlock()
	return log
}

func setLogger(logger zerolog.Logger) {
	logMu.Lock()
	log = logger
	logMu.Unlock()
}

// Init configures the global logger with the given level and output
// ("stdout", "stderr" or a file path).
func Init(level, output string) {
	var out io.Writer
	switch output {
	case "stdout":
		out = os.Stdout
	case "stderr":
		out = os.Stderr
	default:
		f, err := os.OpenFile(output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			panic(fmt.Sprintf("cannot create log output: %v", err))
		}
		out = f
	}
	out = zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: RFC3339Milli,
	}

	logger := zerolog.New(out).With().Timestamp().Logger()
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs

	// Include caller, increasing SkipFrameCount to account for this wrapper.
	logger = logger.With().Caller().Logger()
	zerolog.CallerSkipFrameCount = 3
	zerolog.CallerMarshalFunc = func(pc uintptr, file string, line int) string {
		return fmt.Sprintf("%s/%s:%d", path.Base(path.Dir(file)), path.Base(file), line)
	}

	switch level {
	case LogLevelDebug:
		logger = logger.Level(zerolog.DebugLevel)
	case LogLevelInfo:
		logger = logger.Level(zerolog.InfoLevel)
	case LogLevelWarn:
		logger = logger.Level(zerolog.WarnLevel)
	case LogLevelError:
		logger = logger.Level(zerolog.ErrorLevel)
	default:
		panic(fmt.Sprintf("invalid log level: %q", level))
	}

	setLogger(logger)
}

// Level returns the current log level.
func Level() string {
	switch level := getLogger().GetLevel(); level {
	case zerolog.DebugLevel:
		return LogLevelDebug
	case zerolog.InfoLevel:
		return LogLevelInfo
	case zerolog.WarnLevel:
		return LogLevelWarn
	case zerolog.ErrorLevel:
		return LogLevelError
	default:
		panic(fmt.Sprintf("invalid log level: %q", level))
	}
}

// Debug sends a debug level log message.
func Debug(args ...any) {
	logger := getLogger()
	if logger.GetLevel() > zerolog.DebugLevel {
		return
	}
	logger.Debug().Msg(fmt.Sprint(args...))
}

// Info sends an info level log message.
func Info(args ...any) {
	Logger().Info().Msg(fmt.Sprint(args...))
}

// Warn sends a warn level log message.
func Warn(args ...any) {
	Logger().Warn().Msg(fmt.Sprint(args...))
}

// Error sends an error level log message.
func Error(args ...any) {
	Logger().Error().Msg(fmt.Sprint(args...))
}

// Fatal sends a fatal level log message and exits.
func Fatal(args ...any) {
	Logger().Fatal().Msg(fmt.Sprint(args...) + "\n" + string(debug.Stack()))
	// We don't support log levels lower than "fatal". Help analyzers like
	// staticcheck see that, in this package, Fatal always exits the program.
	panic("unreachable")
}

// Debugf sends a formatted debug level log message.
func Debugf(template string, args ...any) {
	Logger().Debug().Msgf(template, args...)
}

// Infof sends a formatted info level log message.
func Infof(template string, args ...any) {
	Logger().Info().Msgf(template, args...)
}

// Warnf sends a formatted warn level log message.
func Warnf(template string, args ...any) {
	Logger().Warn().Msgf(template, args...)
}

// Errorf sends a formatted error level log message.
func Errorf(template string, args ...any) {
	Logger().Error().Msgf(template, args...)
}

// Fatalf sends a formatted fatal level log message and exits.
func Fatalf(template string, args ...any) {
	Logger().Fatal().Msgf(template+"\n"+string(debug.Stack()), args...)
}

// Debugw sends a debug level log message with key-value pairs.
func Debugw(msg string, keyvalues ...any) {
	Logger().Debug().Fields(keyvalues).Msg(msg)
}

// Infow sends an info level log message with key-value pairs.
func Infow(msg string, keyvalues ...any) {
	Logger().Info().Fields(keyvalues).Msg(msg)
}

// Warnw sends a warning level log message with key-value pairs.
func Warnw(msg string, keyvalues ...any) {
	Logger().Warn().Fields(keyvalues).Msg(msg)
}

// Errorw sends an error level log message with a special format for errors.
func Errorw(err error, msg string) {
	Logger().Error().Err(err).Msg(msg)
}
