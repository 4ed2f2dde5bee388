package pipeline

import (
	"context"
	"fmt"
	"time"

	"adi/internal/builtin"
	"adi/internal/config"
	"adi/internal/plugin"
	"adi/internal/spec"
	"adi/internal/table"
	"adi/internal/telemetry"
	"adi/internal/transformation"
	"adi/storage"
)

// Deps are the shared pieces a run document is compiled against.
type Deps struct {
	Registry *storage.Registry
	Engine   config.EngineConfig
	Metrics  *telemetry.Metrics
}

// Compile turns a run document into a Job ready to run.
func Compile(f spec.File, deps Deps) (*Job, error) {
	j := &Job{name: f.Name, params: transformation.RunParams{Input: f.Input, Output: f.Output}}

	fn, err := j.function(f.Transform)
	if err != nil {
		j.Close()
		return nil, err
	}

	eng := deps.Engine
	if f.Engine.ChunkRows != nil {
		eng.ChunkRows = *f.Engine.ChunkRows
	}
	if f.Engine.SampleMode != "" {
		eng.SampleMode = f.Engine.SampleMode
	}
	mode, err := transformation.ParseSampleMode(eng.SampleMode)
	if err != nil {
		j.Close()
		return nil, err
	}

	j.t, err = transformation.New(fn,
		transformation.WithName(f.Name),
		transformation.WithStorage(deps.Registry),
		transformation.WithDefaultInputs(f.Defaults),
		transformation.WithChunkRows(eng.ChunkRows),
		transformation.WithReadBuffer(eng.ReadBuffer),
		transformation.WithSampleSize(eng.SampleSize),
		transformation.WithSampleMode(mode),
		transformation.WithForkCapacity(eng.ForkCapacity),
		transformation.WithMetrics(deps.Metrics),
	)
	if err != nil {
		j.Close()
		return nil, fmt.Errorf("pipeline %s: %w", f.Name, err)
	}
	return j, nil
}

func (j *Job) function(ts spec.TransformSpec) (transformation.Func, error) {
	if ts.Plugin == nil {
		return builtin.New(ts.Builtin, ts.Options)
	}
	cli, err := plugin.Dial(ts.Plugin.Address)
	if err != nil {
		return nil, fmt.Errorf("transform %s: dial %s: %w", ts.Plugin.Name, ts.Plugin.Address, err)
	}
	j.closers = append(j.closers, cli.Close)
	return withTimeout(plugin.Func(cli, ts.Plugin.Name), time.Duration(ts.Plugin.TimeoutMS)*time.Millisecond), nil
}

// withTimeout bounds every call of fn; zero leaves it unbounded.
func withTimeout(fn transformation.Func, d time.Duration) transformation.Func {
	if d <= 0 {
		return fn
	}
	return func(ctx context.Context, p transformation.Params) (table.Result, error) {
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return fn(ctx, p)
	}
}
