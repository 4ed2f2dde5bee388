// Package local stores payloads as files below a root directory.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"
	"strings"

	"adi/storage"
)

type Driver struct {
	root string
}

var _ storage.Driver = (*Driver)(nil)

// New returns a driver rooted at root. Absolute locators are used as is.
func New(root string) *Driver {
	return &Driver{root: root}
}

func (d *Driver) path(loc string) (string, error) {
	if loc == "" {
		return "", errors.New("local: empty locator")
	}
	if filepath.IsAbs(loc) || d.root == "" {
		return filepath.Clean(loc), nil
	}
	p := filepath.Join(d.root, loc)
	rel, err := filepath.Rel(d.root, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("local: locator %q escapes root", loc)
	}
	return p, nil
}

func (d *Driver) Read(ctx context.Context, loc string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := d.path(loc)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(p)
}

func (d *Driver) ReadChunked(ctx context.Context, loc string, chunkSize int) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		p, err := d.path(loc)
		if err != nil {
			yield(nil, err)
			return
		}
		f, err := os.Open(p)
		if err != nil {
			yield(nil, err)
			return
		}
		defer f.Close()
		if chunkSize <= 0 {
			chunkSize = 64 << 10
		}
		for {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			buf := make([]byte, chunkSize)
			n, err := io.ReadFull(f, buf)
			if n > 0 && !yield(buf[:n], nil) {
				return
			}
			switch {
			case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
				return
			case err != nil:
				yield(nil, err)
				return
			}
		}
	}
}

func (d *Driver) Write(ctx context.Context, loc string, data []byte) error {
	return d.WriteStream(ctx, loc, storage.Chunks(data, 0))
}

// WriteStream writes to a temporary file and renames it into place, so a
// failed stream never leaves a partial payload at loc.
func (d *Driver) WriteStream(ctx context.Context, loc string, chunks iter.Seq2[[]byte, error]) error {
	p, err := d.path(loc)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(p), "."+filepath.Base(p)+".*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer os.Remove(tmp)

	for b, err := range chunks {
		if err == nil {
			err = ctx.Err()
		}
		if err == nil {
			_, err = f.Write(b)
		}
		if err != nil {
			f.Close()
			return err
		}
	}
	if err := f.Close(); err != nil {
		return err
	}
	// a cancelled context may also have ended the stream early
	if err := ctx.Err(); err != nil {
		return err
	}
	return os.Rename(tmp, p)
}

func (d *Driver) SizeOf(ctx context.Context, loc string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	p, err := d.path(loc)
	if err != nil {
		return 0, err
	}
	fi, err := os.Stat(p)
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}
