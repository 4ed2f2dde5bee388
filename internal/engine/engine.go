// Package engine owns the long-lived pieces of a process: the storage
// registry, the metrics endpoint, the transport server and the platform
// connection.
package engine

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"adi/internal/config"
	"adi/internal/logging"
	"adi/internal/pipeline"
	"adi/internal/platform"
	"adi/internal/telemetry"
	"adi/internal/transformation"
	"adi/internal/transport"
	"adi/storage"
)

type Engine struct {
	cfg        config.Config
	storage    *storage.Registry
	metrics    *telemetry.Metrics
	gatherer   *prometheus.Registry
	metricsSrv *http.Server
	transport  *transport.Server
	closers    []func() error

	platformOnce sync.Once
	platform     *platform.Connection
	platformErr  error
}

func (e *Engine) Storage() *storage.Registry { return e.storage }

func (e *Engine) Metrics() *telemetry.Metrics { return e.metrics }

func (e *Engine) Gatherer() prometheus.Gatherer { return e.gatherer }

// TransportAddr is the gRPC listen address, nil when not serving.
func (e *Engine) TransportAddr() net.Addr {
	if e.transport == nil {
		return nil
	}
	return e.transport.Addr()
}

// Platform connects to the dataset platform on first use.
func (e *Engine) Platform() (*platform.Connection, error) {
	e.platformOnce.Do(func() {
		e.platform, e.platformErr = platform.Connect(e.cfg.Platform.Host, e.cfg.Platform.APIKey, nil)
	})
	return e.platform, e.platformErr
}

// RunSpec loads the run document at path, executes it once and returns the
// metadata it recorded.
func (e *Engine) RunSpec(ctx context.Context, path string) (transformation.Metadata, error) {
	f, err := config.LoadRunSpec(path)
	if err != nil {
		return transformation.Metadata{}, err
	}
	job, err := pipeline.Compile(f, pipeline.Deps{
		Registry: e.storage,
		Engine:   e.cfg.Engine,
		Metrics:  e.metrics,
	})
	if err != nil {
		return transformation.Metadata{}, err
	}
	defer func() {
		if cerr := job.Close(); cerr != nil {
			logging.Component("engine").Warn("close job", "job", job.Name(), "err", cerr)
		}
	}()
	return job.Run(ctx)
}

// Run serves the transport until ctx is cancelled. Without a transport it
// just waits.
func (e *Engine) Run(ctx context.Context) error {
	if e.transport == nil {
		<-ctx.Done()
		return nil
	}
	go func() {
		<-ctx.Done()
		e.transport.Stop()
	}()
	return e.transport.Serve()
}

// Close stops the servers and releases storage clients.
func (e *Engine) Close() error {
	var errs []error
	if e.transport != nil {
		e.transport.Stop()
	}
	if e.metricsSrv != nil {
		errs = append(errs, e.metricsSrv.Close())
	}
	for _, c := range e.closers {
		errs = append(errs, c())
	}
	e.closers = nil
	return errors.Join(errs...)
}
