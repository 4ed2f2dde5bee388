package plugin

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"adi/internal/table"
	"adi/internal/transformation"
)

// Client invokes a named transform function wherever it runs.
type Client interface {
	Transform(ctx context.Context, name string, params transformation.Params) (table.Result, error)
	Close() error
}

// GRPCClient calls a plugin process.
type GRPCClient struct {
	conn grpc.ClientConnInterface
	own  *grpc.ClientConn
}

// Dial connects to target without transport security.
func Dial(target string, opts ...grpc.DialOption) (*GRPCClient, error) {
	if len(opts) == 0 {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, err
	}
	return &GRPCClient{conn: conn, own: conn}, nil
}

// NewGRPCClient uses an existing connection; Close leaves it open.
func NewGRPCClient(conn grpc.ClientConnInterface) *GRPCClient {
	return &GRPCClient{conn: conn}
}

func (c *GRPCClient) Transform(ctx context.Context, name string, params transformation.Params) (table.Result, error) {
	ps, err := EncodeParams(params)
	if err != nil {
		return nil, err
	}
	req := &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldName:   structpb.NewStringValue(name),
		fieldParams: structpb.NewStructValue(ps),
	}}
	resp := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, TransformMethod, req, resp); err != nil {
		return nil, fmt.Errorf("plugin %s: %w", name, err)
	}
	return DecodeResult(resp.GetFields()[fieldResult])
}

func (c *GRPCClient) Close() error {
	if c.own != nil {
		return c.own.Close()
	}
	return nil
}

// InProcessClient serves Functions compiled into the binary.
type InProcessClient struct {
	fns Functions
}

func NewInProcessClient(fns Functions) *InProcessClient { return &InProcessClient{fns: fns} }

func (c *InProcessClient) Transform(ctx context.Context, name string, params transformation.Params) (table.Result, error) {
	fn, ok := c.fns[name]
	if !ok {
		return nil, fmt.Errorf("plugin: transformation %q is not compiled in", name)
	}
	return fn(ctx, params)
}

func (c *InProcessClient) Close() error { return nil }

// Func adapts a client call to a transformation.Func.
func Func(c Client, name string) transformation.Func {
	return func(ctx context.Context, params transformation.Params) (table.Result, error) {
		return c.Transform(ctx, name, params)
	}
}
