// Package minio stores payloads in S3-compatible buckets. Locators have the
// form "bucket/key".
package minio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"adi/storage"
)

var (
	ErrBucketNotFound   = errors.New("minio: bucket not found")
	ErrObjectNotFound   = errors.New("minio: object not found")
	ErrPermissionDenied = errors.New("minio: permission denied")
	ErrAuthInvalid      = errors.New("minio: invalid credentials")
)

type Config struct {
	Endpoint        string `koanf:"endpoint"`
	AccessKeyID     string `koanf:"access_key_id"`
	SecretAccessKey string `koanf:"secret_access_key"`
	Region          string `koanf:"region"`
	UseSSL          bool   `koanf:"use_ssl"`
	PartSize        uint64 `koanf:"part_size"`
}

// ObjectAPI is the subset of *minio.Client the driver uses.
type ObjectAPI interface {
	GetObject(ctx context.Context, bucket, key string, opts minio.GetObjectOptions) (*minio.Object, error)
	PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	StatObject(ctx context.Context, bucket, key string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
}

type Driver struct {
	api      ObjectAPI
	partSize uint64
}

var _ storage.Driver = (*Driver)(nil)

// New dials nothing; minio clients connect lazily.
func New(cfg Config) (*Driver, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("minio: endpoint is required")
	}
	if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		return nil, fmt.Errorf("%w: credentials are required", ErrAuthInvalid)
	}
	endpoint, secure := cfg.Endpoint, cfg.UseSSL
	if u, err := url.Parse(cfg.Endpoint); err == nil && u.Host != "" {
		endpoint = u.Host
		secure = secure || u.Scheme == "https"
	}
	cl, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("minio: client: %w", err)
	}
	return NewWithAPI(cl, cfg.PartSize), nil
}

func NewWithAPI(api ObjectAPI, partSize uint64) *Driver {
	if partSize == 0 {
		partSize = 16 << 20
	}
	return &Driver{api: api, partSize: partSize}
}

func split(loc string) (bucket, key string, err error) {
	bucket, key, ok := strings.Cut(strings.TrimPrefix(loc, "/"), "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("minio: locator %q is not bucket/key", loc)
	}
	return bucket, key, nil
}

func (d *Driver) open(ctx context.Context, loc string) (*minio.Object, error) {
	bucket, key, err := split(loc)
	if err != nil {
		return nil, err
	}
	obj, err := d.api.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, classify(err)
	}
	return obj, nil
}

func (d *Driver) Read(ctx context.Context, loc string) ([]byte, error) {
	obj, err := d.open(ctx, loc)
	if err != nil {
		return nil, err
	}
	defer obj.Close()
	b, err := io.ReadAll(obj)
	if err != nil {
		return nil, classify(err)
	}
	return b, nil
}

func (d *Driver) ReadChunked(ctx context.Context, loc string, chunkSize int) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		obj, err := d.open(ctx, loc)
		if err != nil {
			yield(nil, err)
			return
		}
		defer obj.Close()
		if chunkSize <= 0 {
			chunkSize = 64 << 10
		}
		for {
			buf := make([]byte, chunkSize)
			n, err := io.ReadFull(obj, buf)
			if n > 0 && !yield(buf[:n], nil) {
				return
			}
			switch {
			case err == nil:
			case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
				return
			default:
				yield(nil, classify(err))
				return
			}
		}
	}
}

func (d *Driver) Write(ctx context.Context, loc string, data []byte) error {
	bucket, key, err := split(loc)
	if err != nil {
		return err
	}
	_, err = d.api.PutObject(ctx, bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	return classify(err)
}

// WriteStream uploads an object of unknown size through a pipe; minio-go
// splits it into multipart parts of partSize.
func (d *Driver) WriteStream(ctx context.Context, loc string, chunks iter.Seq2[[]byte, error]) error {
	bucket, key, err := split(loc)
	if err != nil {
		return err
	}
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
	_, err = d.api.PutObject(ctx, bucket, key, pr, -1, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
		PartSize:    d.partSize,
	})
	pr.CloseWithError(io.ErrClosedPipe)
	<-fed
	return classify(err)
}

func (d *Driver) SizeOf(ctx context.Context, loc string) (int64, error) {
	bucket, key, err := split(loc)
	if err != nil {
		return 0, err
	}
	info, err := d.api.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return 0, classify(err)
	}
	return info.Size, nil
}

// classify maps minio error responses onto the package sentinels.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var resp minio.ErrorResponse
	if errors.As(err, &resp) {
		switch resp.Code {
		case "NoSuchBucket":
			return fmt.Errorf("%w: %v", ErrBucketNotFound, err)
		case "NoSuchKey":
			return fmt.Errorf("%w: %v", ErrObjectNotFound, err)
		case "AccessDenied":
			return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
		case "InvalidAccessKeyId", "SignatureDoesNotMatch":
			return fmt.Errorf("%w: %v", ErrAuthInvalid, err)
		}
	}
	return err
}
