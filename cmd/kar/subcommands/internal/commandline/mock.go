// Package commandline provides a fake flarc.Commandline to test subcommand tasks.
package commandline

import (
	"io"
	"strings"

	"github.com/youta-t/flarc"
)

// Fake is a flarc.Commandline with captured stdout and stderr.
type Fake[T any] struct {
	Name  string
	Flag  T
	Arg   map[string][]string
	Input io.Reader

	Out strings.Builder
	Err strings.Builder
}

var _ flarc.Commandline[struct{}] = &Fake[struct{}]{}

// New returns a Fake named name, with flags and positional args under key.
func New[T any](name string, flags T, key string, args ...string) *Fake[T] {
	return &Fake[T]{
		Name:  name,
		Flag:  flags,
		Arg:   map[string][]string{key: args},
		Input: strings.NewReader(""),
	}
}

func (f *Fake[T]) Fullname() string          { return f.Name }
func (f *Fake[T]) Stdin() io.Reader          { return f.Input }
func (f *Fake[T]) Stdout() io.Writer         { return &f.Out }
func (f *Fake[T]) Stderr() io.Writer         { return &f.Err }
func (f *Fake[T]) Flags() T                  { return f.Flag }
func (f *Fake[T]) Args() map[string][]string { return f.Arg }
