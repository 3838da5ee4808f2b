package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sync"

	pb "github.com/cheggaaa/pb/v3"
	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	"github.com/opst/karfab/cmd/kar/subcommands/common"
	"github.com/opst/karfab/pkg/modules"
	"github.com/youta-t/flarc"
)

type Flag struct {
	Dest  string `flag:"dest" alias:"d" metavar:"DIRECTORY" help:"Directory where fetched KAR files are written."`
	Quiet bool   `flag:"quiet" alias:"q" help:"Do not show progress bars."`
}

const ARG_SOURCE = "SOURCE"

func New() (flarc.Command, error) {
	return flarc.NewCommand(
		"Download KAR files.",
		Flag{Dest: "."},
		flarc.Args{
			{
				Name: ARG_SOURCE, Required: true, Repeatable: true,
				Help: "URL of KAR file (http:// or https://), or OCI image (oci://registry/repository:tag).",
			},
		},
		common.NewTask(Task(WithRemoteOptions(remote.WithAuthFromKeychain(authn.DefaultKeychain)))),
		flarc.WithDescription(`
Download KAR files into a directory.

For OCI images, all "*.kar" files in layers of the image are written.
Credentials for registries are read from docker config.
`),
	)
}

type taskOption struct {
	fetchOptions []modules.FetchOption
}

type TaskOption func(*taskOption) *taskOption

func WithFetchOptions(options ...modules.FetchOption) TaskOption {
	return func(to *taskOption) *taskOption {
		to.fetchOptions = append(to.fetchOptions, options...)
		return to
	}
}

func WithRemoteOptions(options ...remote.Option) TaskOption {
	return WithFetchOptions(modules.WithRemoteOptions(options...))
}

func Task(options ...TaskOption) common.Task[Flag] {
	opt := &taskOption{}
	for _, o := range options {
		opt = o(opt)
	}

	return func(
		ctx context.Context,
		logger *log.Logger,
		cl flarc.Commandline[Flag],
		params []any,
	) error {
		flags := cl.Flags()
		if err := os.MkdirAll(flags.Dest, os.FileMode(0o755)); err != nil {
			return err
		}

		fetched := []string{}
		var errs []error
		for _, src := range cl.Args()[ARG_SOURCE] {
			bars := &progress{out: cl.Stderr()}
			fopts := append([]modules.FetchOption{}, opt.fetchOptions...)
			if !flags.Quiet {
				fopts = append(fopts, modules.WithProgress(bars.Track))
			}

			logger.Printf("fetching %s ...", src)
			ps, err := modules.Fetch(ctx, src, flags.Dest, fopts...)
			bars.Finish()
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", src, err))
				continue
			}
			fetched = append(fetched, ps...)
		}

		if err := common.WriteJSON(cl.Stdout(), fetched); err != nil {
			return err
		}
		return errors.Join(errs...)
	}
}

// progress shows a progress bar for each file.
type progress struct {
	out  io.Writer
	mu   sync.Mutex
	bars []*pb.ProgressBar
}

func (p *progress) Track(name string, size int64, r io.Reader) io.Reader {
	bar := pb.New64(size)
	bar.Set(pb.Bytes, true)
	bar.Set("prefix", name+": ")
	bar.SetWriter(p.out)
	bar.Start()

	p.mu.Lock()
	p.bars = append(p.bars, bar)
	p.mu.Unlock()

	return bar.NewProxyReader(r)
}

func (p *progress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, b := range p.bars {
		b.Finish()
	}
	p.bars = nil
}
