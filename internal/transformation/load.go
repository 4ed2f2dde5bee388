package transformation

import (
	"context"
	"fmt"
	"iter"

	"adi/codec"
	"adi/internal/dataref"
	"adi/internal/logging"
	"adi/internal/paramstream"
	"adi/internal/table"
	"adi/storage"
)

// Load resolves every input over the default template and runs the loader
// bound to each name, or the default loader. Inputs are read under the
// imported variant.
func (t *Transformation) Load(ctx context.Context, inputs map[string]dataref.Reference) (map[string]any, error) {
	refs := t.defaults.Resolve(inputs)
	out := make(map[string]any, len(refs))
	for _, name := range dataref.Template(refs).Names() {
		ref := refs[name]
		l, which := t.loaders[name], name
		if l == nil {
			l, which = t.loaders[DefaultLoaderName], DefaultLoaderName
		}
		logging.L().Debug("transformation: load", "transformation", t.name, "param", name,
			"loader", which, "storage", ref.Storage, "format", ref.Format)
		v, err := l(ctx, ref, dataref.VariantImported)
		if err != nil {
			return nil, fmt.Errorf("transformation %s: load %q: %w", t.name, name, err)
		}
		out[name] = v
	}
	return out, nil
}

// DefaultLoader reads through the storage registry and decodes with the
// reference's codec. Kind and format are checked before any read. With
// chunkRows > 0, or for drivers that deliver framed messages, the value is
// a lazy paramstream.Sequence of decoded chunks.
func DefaultLoader(reg *storage.Registry, chunkRows, readBuffer int) Loader {
	return func(ctx context.Context, ref dataref.Reference, v dataref.Variant) (any, error) {
		if err := ref.Validate(); err != nil {
			return nil, err
		}
		c, err := codec.For(ref.Format)
		if err != nil {
			return nil, err
		}
		if _, err := ref.Locator(v); err != nil {
			return nil, err
		}
		d, err := reg.Driver(ref.Storage)
		if err != nil {
			return nil, err
		}

		if framed := storage.IsFramed(d); framed || chunkRows > 0 {
			chunks := reg.ReadChunked(ctx, ref, v, readBuffer)
			var results iter.Seq2[table.Result, error]
			if framed {
				results = codec.DecodeEach(c, chunks)
			} else {
				results = c.DecodeStream(chunks, chunkRows)
			}
			return paramstream.Sequence(func(yield func(any, error) bool) {
				for r, err := range results {
					if !yield(r, err) || err != nil {
						return
					}
				}
			}), nil
		}

		b, err := reg.Read(ctx, ref, v)
		if err != nil {
			return nil, err
		}
		return c.Decode(b)
	}
}
