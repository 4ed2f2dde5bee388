package pipeline

import (
	"context"
	"errors"

	"adi/internal/transformation"
)

// Job is one compiled run document.
type Job struct {
	name    string
	t       *transformation.Transformation
	params  transformation.RunParams
	closers []func() error
}

func (j *Job) Name() string { return j.name }

// Run executes the document once and returns what the run recorded.
func (j *Job) Run(ctx context.Context) (transformation.Metadata, error) {
	if j.t == nil {
		return transformation.Metadata{}, errors.New("pipeline: job not compiled")
	}
	err := j.t.Run(ctx, j.params)
	return j.t.Metadata(), err
}

// Close releases plugin connections.
func (j *Job) Close() error {
	var errs []error
	for _, c := range j.closers {
		errs = append(errs, c())
	}
	j.closers = nil
	return errors.Join(errs...)
}
