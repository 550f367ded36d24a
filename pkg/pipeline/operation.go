package pipeline

import (
	"context"
	"log/slog"
)

// Operation is one named step of a pipeline. Apply must not mutate its input.
type Operation interface {
	Kind() string
	Apply(ctx context.Context, in Result) (Result, error)
}

// Func adapts a plain function to an Operation.
type Func func(ctx context.Context, in Result) (Result, error)

func (f Func) Kind() string { return "func" }

func (f Func) Apply(ctx context.Context, in Result) (Result, error) { return f(ctx, in) }

type envKey struct{}

// env is what a running pipeline tells the operations it applies.
type env struct {
	log    *slog.Logger
	strict bool
	op     string
}

func withEnv(ctx context.Context, e env) context.Context {
	return context.WithValue(ctx, envKey{}, e)
}

func envFrom(ctx context.Context) env {
	if e, ok := ctx.Value(envKey{}).(env); ok {
		return e
	}
	return env{log: slog.Default()}
}

// OperationName returns the registered name of the operation being applied,
// or "" outside of Run.
func OperationName(ctx context.Context) string { return envFrom(ctx).op }

// Logger returns the logger of the running pipeline.
func Logger(ctx context.Context) *slog.Logger {
	if l := envFrom(ctx).log; l != nil {
		return l
	}
	return slog.Default()
}

// Mismatch is called by an operation that received input of the wrong shape.
// It warns and returns the input unchanged, or returns a *ShapeError when the
// pipeline runs with strict shapes.
func Mismatch(ctx context.Context, kind string, want Shape, in Result) (Result, error) {
	e := envFrom(ctx)
	if e.strict {
		return nil, &ShapeError{Op: e.op, Kind: kind, Want: want, Got: ShapeOf(in)}
	}
	Logger(ctx).WarnContext(ctx, "operation input has unexpected shape, passing through",
		"op", e.op, "kind", kind, "want", want.String(), "got", ShapeOf(in).String())
	return in, nil
}
