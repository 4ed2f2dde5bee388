// Package tempurl reads and writes objects through pre-signed object store
// URLs (Swift temp URLs). The locator is the URL itself.
package tempurl

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strconv"

	"adi/storage"
)

// StatusError reports a non-2xx response.
type StatusError struct {
	Method string
	URL    string
	Code   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("tempurl: %s %s: status %d", e.Method, e.URL, e.Code)
}

type Driver struct {
	http *http.Client
}

var _ storage.Driver = (*Driver)(nil)

// New uses hc for all requests; nil means http.DefaultClient.
func New(hc *http.Client) *Driver {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Driver{http: hc}
}

func (d *Driver) do(ctx context.Context, method, url string, body io.Reader, size int64) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	if size >= 0 {
		req.ContentLength = size
	}
	resp, err := d.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		return nil, &StatusError{Method: method, URL: url, Code: resp.StatusCode}
	}
	return resp, nil
}

func (d *Driver) Read(ctx context.Context, loc string) ([]byte, error) {
	resp, err := d.do(ctx, http.MethodGet, loc, nil, -1)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

func (d *Driver) ReadChunked(ctx context.Context, loc string, chunkSize int) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		resp, err := d.do(ctx, http.MethodGet, loc, nil, -1)
		if err != nil {
			yield(nil, err)
			return
		}
		defer resp.Body.Close()
		if chunkSize <= 0 {
			chunkSize = 64 << 10
		}
		for {
			buf := make([]byte, chunkSize)
			n, err := io.ReadFull(resp.Body, buf)
			if n > 0 && !yield(buf[:n], nil) {
				return
			}
			switch err {
			case nil:
			case io.EOF, io.ErrUnexpectedEOF:
				return
			default:
				yield(nil, err)
				return
			}
		}
	}
}

func (d *Driver) Write(ctx context.Context, loc string, data []byte) error {
	resp, err := d.do(ctx, http.MethodPut, loc, bytesReader(data), int64(len(data)))
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// WriteStream sends a single chunked PUT fed through a pipe.
func (d *Driver) WriteStream(ctx context.Context, loc string, chunks iter.Seq2[[]byte, error]) error {
	pr, pw := io.Pipe()
	fed := make(chan struct{})
	go func() {
		defer close(fed)
		for b, err := range chunks {
			if err != nil {
				pw.CloseWithError(err)
				return
			}
			if _, err := pw.Write(b); err != nil {
				return
			}
		}
		pw.CloseWithError(ctx.Err())
	}()
	resp, err := d.do(ctx, http.MethodPut, loc, pr, -1)
	// unblock the feeding goroutine if the request ended early
	pr.CloseWithError(io.ErrClosedPipe)
	<-fed
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// SizeOf reports Content-Length from a HEAD request.
func (d *Driver) SizeOf(ctx context.Context, loc string) (int64, error) {
	resp, err := d.do(ctx, http.MethodHead, loc, nil, -1)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	if v := resp.Header.Get("Content-Length"); v != "" {
		return strconv.ParseInt(v, 10, 64)
	}
	if resp.ContentLength >= 0 {
		return resp.ContentLength, nil
	}
	return 0, fmt.Errorf("tempurl: HEAD %s: no content length", loc)
}

func bytesReader(b []byte) io.Reader {
	if len(b) == 0 {
		return http.NoBody
	}
	return bytes.NewReader(b)
}
