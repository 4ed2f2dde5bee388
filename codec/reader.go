package codec

import (
	"io"
	"iter"
)

// seqReader exposes a chunk sequence as an io.Reader without a goroutine.
type seqReader struct {
	next func() ([]byte, error, bool)
	stop func()
	buf  []byte
	err  error
}

func newSeqReader(chunks iter.Seq2[[]byte, error]) *seqReader {
	next, stop := iter.Pull2(chunks)
	return &seqReader{next: next, stop: stop}
}

func (r *seqReader) Read(p []byte) (int, error) {
	for len(r.buf) == 0 {
		if r.err != nil {
			return 0, r.err
		}
		b, err, ok := r.next()
		switch {
		case !ok:
			r.err = io.EOF
		case err != nil:
			r.err = err
		default:
			r.buf = b
		}
	}
	n := copy(p, r.buf)
	r.buf = r.buf[n:]
	return n, nil
}

func (r *seqReader) Close() error {
	r.stop()
	return nil
}
