package logging

import (
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
)

type Options struct {
	Level     string `koanf:"level"`
	JSON      bool   `koanf:"json"`
	AddSource bool   `koanf:"add_source"`
}

var def atomic.Value

func init() {
	cfg := &slog.HandlerOptions{Level: slog.LevelInfo}
	h := slog.NewTextHandler(os.Stderr, cfg)
	def.Store(slog.New(h))
}

func Configure(opts Options) {
	ConfigureWriter(os.Stderr, opts)
}

// ConfigureWriter installs a logger writing to w; tests point it at a buffer.
func ConfigureWriter(w io.Writer, opts Options) {
	cfg := &slog.HandlerOptions{Level: parseLevel(opts.Level), AddSource: opts.AddSource}
	var h slog.Handler
	if opts.JSON {
		h = slog.NewJSONHandler(w, cfg)
	} else {
		h = slog.NewTextHandler(w, cfg)
	}
	def.Store(slog.New(h))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func L() *slog.Logger {
	l, _ := def.Load().(*slog.Logger)
	return l
}

// Component tags every record with the subsystem that wrote it.
func Component(name string) *slog.Logger {
	return L().With("component", name)
}

// InitFromEnv reads ADI_LOG_LEVEL, ADI_LOG_JSON and ADI_LOG_SOURCE.
func InitFromEnv() {
	Configure(Options{
		Level:     os.Getenv("ADI_LOG_LEVEL"),
		JSON:      envBool("ADI_LOG_JSON"),
		AddSource: envBool("ADI_LOG_SOURCE"),
	})
}

func envBool(key string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	return err == nil && b
}
