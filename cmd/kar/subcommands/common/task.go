package common

import (
	"context"
	"encoding/json"
	"io"
	"log"

	"github.com/opst/karfab/cmd/kar/subcommands/logger"
	"github.com/youta-t/flarc"
)

type Task[T any] func(
	ctx context.Context,
	logger *log.Logger,
	cl flarc.Commandline[T],
	params []any,
) error

// NewTask adapts Task to flarc.Task, with a logger writing to stderr.
func NewTask[T any](task Task[T]) flarc.Task[T] {
	return func(ctx context.Context, cl flarc.Commandline[T], params []any) error {
		return task(ctx, logger.New(cl.Stderr(), cl.Fullname()), cl, params)
	}
}

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v any) error {
	j := json.NewEncoder(w)
	j.SetIndent("", "    ")
	return j.Encode(v)
}
