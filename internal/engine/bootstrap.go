package engine

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"adi/internal/builtin"
	"adi/internal/config"
	"adi/internal/dataref"
	"adi/internal/logging"
	"adi/internal/telemetry"
	"adi/internal/transport"
	"adi/storage"
	"adi/storage/kafka"
	"adi/storage/local"
	"adi/storage/memory"
	"adi/storage/minio"
	"adi/storage/tempurl"
)

type options struct {
	serve   bool
	metrics bool
}

type Option func(*options)

// WithServer hosts the builtin transformations on the configured gRPC port.
func WithServer() Option { return func(o *options) { o.serve = true } }

// WithoutMetrics skips the /metrics endpoint; collectors are still recorded.
func WithoutMetrics() Option { return func(o *options) { o.metrics = false } }

// Bootstrap wires storage, metrics and, optionally, the transport server
// from cfg.
func Bootstrap(ctx context.Context, cfg config.Config, opts ...Option) (*Engine, error) {
	o := options{metrics: true}
	for _, opt := range opts {
		opt(&o)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e := &Engine{cfg: cfg, gatherer: prometheus.NewRegistry()}

	// 1. storage
	reg, err := e.registry(cfg.Storage)
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("storage: %w", err)
	}
	e.storage = reg

	// 2. metrics
	e.metrics = telemetry.NewMetrics(e.gatherer)
	if o.metrics {
		e.metricsSrv = telemetry.Expose(cfg.Metrics.Port, e.gatherer)
	}

	// 3. transport server
	if o.serve {
		fns, err := builtin.Functions()
		if err != nil {
			e.Close()
			return nil, fmt.Errorf("builtin: %w", err)
		}
		srv, err := transport.StartServer(cfg.GRPC.Port, fns)
		if err != nil {
			e.Close()
			return nil, fmt.Errorf("transport: %w", err)
		}
		e.transport = srv
	}
	return e, nil
}

func (e *Engine) registry(c config.StorageConfig) (*storage.Registry, error) {
	reg := storage.NewRegistry()
	register := func(kind dataref.StorageKind, d storage.Driver) error {
		if err := reg.Register(kind, d); err != nil {
			return err
		}
		logging.Component("engine").Debug("storage registered", "kind", kind)
		return nil
	}

	if err := register(dataref.StorageLocal, local.New(c.Local.Root)); err != nil {
		return nil, err
	}
	if err := register(dataref.StorageMemory, memory.New()); err != nil {
		return nil, err
	}
	hc := &http.Client{Timeout: c.TempURL.Timeout}
	if err := register(dataref.StorageSwiftTempURL, tempurl.New(hc)); err != nil {
		return nil, err
	}
	if c.Minio.Endpoint != "" {
		d, err := minio.New(c.Minio)
		if err != nil {
			return nil, fmt.Errorf("minio: %w", err)
		}
		if err := register(dataref.StorageMinio, d); err != nil {
			return nil, err
		}
	}
	if len(c.Kafka.Brokers) > 0 {
		d, err := kafka.New(c.Kafka)
		if err != nil {
			return nil, fmt.Errorf("kafka: %w", err)
		}
		e.closers = append(e.closers, d.Close)
		if err := register(dataref.StorageKafka, d); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
