// Package codec turns stored bytes into transform inputs and transform
// results back into bytes, one closed set of formats at a time.
package codec

import (
	"iter"

	"adi/internal/dataref"
	"adi/internal/errs"
	"adi/internal/table"
)

// Codec decodes and encodes one DataFormat.
type Codec interface {
	Format() dataref.DataFormat

	// Decode reads a complete payload.
	Decode(data []byte) (table.Result, error)

	// DecodeStream reads a payload delivered as raw byte chunks and yields
	// results lazily. For tabular formats rows bounds each yielded table;
	// rows <= 0 yields the whole payload as one result.
	DecodeStream(chunks iter.Seq2[[]byte, error], rows int) iter.Seq2[table.Result, error]

	// NewEncoder starts a new encoded stream.
	NewEncoder() Encoder
}

// Encoder is stateful across the chunks of one stream: structural headers
// are emitted with the first chunk only.
type Encoder interface {
	Encode(r table.Result) ([]byte, error)

	// Close returns trailing bytes such as footers.
	Close() ([]byte, error)
}

var registry = map[dataref.DataFormat]Codec{
	dataref.FormatCSV:     csvCodec{},
	dataref.FormatJSON:    jsonCodec{},
	dataref.FormatParquet: parquetCodec{},
	dataref.FormatRaw:     rawCodec{},
}

// For returns the codec of f or an UnsupportedKindError.
func For(f dataref.DataFormat) (Codec, error) {
	if c, ok := registry[f]; ok {
		return c, nil
	}
	return nil, errs.UnsupportedKind("codec", "format %q", f)
}

// EncodeAll drives enc over results and yields the encoded chunks, ending
// with whatever Close returns. Empty chunks are skipped.
func EncodeAll(enc Encoder, results iter.Seq2[table.Result, error]) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		for r, err := range results {
			if err != nil {
				yield(nil, err)
				return
			}
			b, err := enc.Encode(r)
			if err != nil {
				yield(nil, err)
				return
			}
			if len(b) > 0 && !yield(b, nil) {
				return
			}
		}
		tail, err := enc.Close()
		if err != nil {
			yield(nil, err)
			return
		}
		if len(tail) > 0 {
			yield(tail, nil)
		}
	}
}

// DecodeEach decodes every chunk as a complete payload. It serves storage
// kinds whose chunks are self-contained messages.
func DecodeEach(c Codec, chunks iter.Seq2[[]byte, error]) iter.Seq2[table.Result, error] {
	return func(yield func(table.Result, error) bool) {
		for b, err := range chunks {
			if err != nil {
				yield(nil, err)
				return
			}
			r, err := c.Decode(b)
			if !yield(r, err) || err != nil {
				return
			}
		}
	}
}
