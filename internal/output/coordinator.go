// Package output runs the three consumers of a transformed-result sequence:
// the full write, the sampled write and the metadata capture.
package output

import (
	"context"
	"iter"

	"golang.org/x/sync/errgroup"

	"adi/internal/fork"
	"adi/internal/logging"
	"adi/internal/table"
)

// Task consumes one fork of the result sequence.
type Task func(ctx context.Context, results iter.Seq2[table.Result, error]) error

// Coordinator forks results three ways and joins the tasks. A failing task
// does not cancel its siblings; Run waits for all of them and reports the
// first error.
type Coordinator struct {
	Full     Task
	Sample   Task
	Metadata Task

	// Capacity bounds each fork's buffer; zero means fork.DefaultCapacity.
	Capacity int
}

func (c Coordinator) Run(ctx context.Context, results iter.Seq2[table.Result, error]) error {
	tasks := []struct {
		name string
		run  Task
	}{
		{"full", c.Full},
		{"sample", c.Sample},
		{"metadata", c.Metadata},
	}
	forks := fork.Split(ctx, results, len(tasks), c.Capacity)

	var g errgroup.Group
	for i, task := range tasks {
		f := forks[i]
		g.Go(func() error {
			defer f.Drain()
			if task.run == nil {
				return nil
			}
			err := task.run(ctx, f.All())
			if err != nil {
				logging.L().Warn("output: task failed", "task", task.name, "err", err)
			} else {
				logging.L().Debug("output: task done", "task", task.name)
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
