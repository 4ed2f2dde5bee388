package codec

import (
	"iter"

	"adi/internal/dataref"
	"adi/internal/errs"
	"adi/internal/table"
)

type rawCodec struct{}

func (rawCodec) Format() dataref.DataFormat { return dataref.FormatRaw }

func (rawCodec) Decode(data []byte) (table.Result, error) {
	return table.Document{Value: append([]byte(nil), data...)}, nil
}

func (rawCodec) DecodeStream(chunks iter.Seq2[[]byte, error], _ int) iter.Seq2[table.Result, error] {
	return DecodeEach(rawCodec{}, chunks)
}

func (rawCodec) NewEncoder() Encoder { return rawEncoder{} }

type rawEncoder struct{}

func (rawEncoder) Encode(r table.Result) ([]byte, error) {
	if d, ok := r.(table.Document); ok {
		switch v := d.Value.(type) {
		case []byte:
			return v, nil
		case string:
			return []byte(v), nil
		case nil:
			return nil, nil
		}
	}
	return nil, errs.UnsupportedKind("codec raw", "cannot encode %s payload as bytes", kindOf(r))
}

func (rawEncoder) Close() ([]byte, error) { return nil, nil }
