// Package builtin holds transform functions compiled into the binary,
// selected by name from a run document.
package builtin

import (
	"context"
	"fmt"
	"sort"

	"adi/internal/errs"
	"adi/internal/table"
	"adi/internal/transformation"
)

// Factory builds a function from its options.
type Factory func(opts map[string]any) (transformation.Func, error)

var registry = map[string]Factory{
	"identity": identity,
	"head":     head,
}

// New returns the builtin called name.
func New(name string, opts map[string]any) (transformation.Func, error) {
	f, ok := registry[name]
	if !ok {
		return nil, errs.Configuration("builtin", "unknown transformation %q (have %v)", name, Names())
	}
	return f(opts)
}

func Names() []string {
	out := make([]string, 0, len(registry))
	for n := range registry {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Functions instantiates every builtin with default options.
func Functions() (map[string]transformation.Func, error) {
	out := make(map[string]transformation.Func, len(registry))
	for n, f := range registry {
		fn, err := f(nil)
		if err != nil {
			return nil, fmt.Errorf("builtin %s: %w", n, err)
		}
		out[n] = fn
	}
	return out, nil
}

// identity passes its only input through.
func identity(map[string]any) (transformation.Func, error) {
	return func(_ context.Context, p transformation.Params) (table.Result, error) {
		in, err := only(p)
		if err != nil {
			return nil, err
		}
		return asResult(in), nil
	}, nil
}

// head keeps the first n rows (default 10) of its only tabular input.
func head(opts map[string]any) (transformation.Func, error) {
	n := 10
	if v, ok := opts["n"]; ok {
		switch x := v.(type) {
		case int:
			n = x
		case int64:
			n = int(x)
		case float64:
			n = int(x)
		default:
			return nil, errs.Configuration("builtin head", "option n must be a number, got %T", v)
		}
	}
	if n < 0 {
		return nil, errs.Configuration("builtin head", "option n must not be negative")
	}
	return func(_ context.Context, p transformation.Params) (table.Result, error) {
		in, err := only(p)
		if err != nil {
			return nil, err
		}
		t, ok := in.(*table.Table)
		if !ok {
			return nil, fmt.Errorf("head: input is %T, want a table", in)
		}
		return t.Head(n), nil
	}, nil
}

func only(p transformation.Params) (any, error) {
	if len(p) != 1 {
		return nil, fmt.Errorf("want exactly one input, got %d", len(p))
	}
	for _, v := range p {
		return v, nil
	}
	return nil, nil
}

func asResult(v any) table.Result {
	if r, ok := v.(table.Result); ok {
		return r
	}
	return table.Document{Value: v}
}
