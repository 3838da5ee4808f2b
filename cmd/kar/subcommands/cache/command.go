package cache

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/opst/karfab/cmd/kar/subcommands/common"
	"github.com/opst/karfab/pkg/api/binding"
	"github.com/opst/karfab/pkg/api/types"
	kcache "github.com/opst/karfab/pkg/cache"
	"github.com/opst/karfab/pkg/cache/index/bolt"
	"github.com/opst/karfab/pkg/kar"
	"github.com/opst/karfab/pkg/kar/handler"
	ktypes "github.com/opst/karfab/pkg/kar/types"
	"github.com/opst/karfab/pkg/modules"
	"github.com/opst/karfab/pkg/workspace"
	"github.com/youta-t/flarc"
)

type Flag struct {
	Index             string   `flag:"index" metavar:"path/to/index.db" help:"Index file. It is created when not exist."`
	ModuleDirectory   string   `flag:"module-directory" help:"Directory where side-effects of entries (jar files, for example) are extracted."`
	SupportedVersions string   `flag:"supported-versions" metavar:"CONSTRAINT" help:"Versions of KAR to be accepted, as semver constraint."`
	Installed         []string `flag:"installed" metavar:"MODULE" help:"Module installed, like \"actors-2.5\". Archives requiring other modules are rejected. Repeatable."`
	Forget            bool     `flag:"forget" help:"Remove entries of the archives from the index, instead of caching."`
	List              bool     `flag:"list" help:"Show records in the index after the operation."`
}

const ARG_SOURCE = "SOURCE"

// Result is the output of cache.
type Result struct {
	Reports   []types.CacheReport `json:"reports,omitempty"`
	Forgotten []string            `json:"forgotten,omitempty"`
	Records   []types.Record      `json:"records,omitempty"`
}

func New() (flarc.Command, error) {
	return flarc.NewCommand(
		"Cache KAR files into an index.",
		Flag{
			Index:             "karfab.db",
			ModuleDirectory:   "modules",
			SupportedVersions: kar.DefaultSupportedVersions,
		},
		flarc.Args{
			{
				Name: ARG_SOURCE, Required: false, Repeatable: true,
				Help: "KAR file or directory containing KAR files.",
			},
		},
		common.NewTask(Task()),
		flarc.WithDescription(`
Pass entries of KAR files to their handlers, and record them into the index file.

When a directory is given, all "*.kar" files in the directory are cached.
When an archive cannot be cached, other archives are still cached and the command fails.

With --forget, entries of the archives are removed from the index.
`),
	)
}

func Task() common.Task[Flag] {
	return func(
		ctx context.Context,
		logger *log.Logger,
		cl flarc.Commandline[Flag],
		params []any,
	) error {
		flags := cl.Flags()
		sources := cl.Args()[ARG_SOURCE]
		if len(sources) == 0 && !flags.List {
			return fmt.Errorf("%w: SOURCE or --list is required", flarc.ErrUsage)
		}

		installed := []modules.Module{}
		if len(flags.Installed) != 0 {
			ms, err := modules.ParseAll(flags.Installed)
			if err != nil {
				return fmt.Errorf("%w: --installed: %w", flarc.ErrUsage, err)
			}
			installed = ms
		}

		idx, err := bolt.Open(flags.Index)
		if err != nil {
			return err
		}
		defer idx.Close()

		registry, err := handler.Defaults(ktypes.Default(), flags.ModuleDirectory)
		if err != nil {
			return err
		}
		options := []kcache.Option{
			kcache.WithLogger(logger),
			kcache.WithArchiveOptions(kar.WithSupportedVersions(flags.SupportedVersions)),
		}
		if len(installed) != 0 {
			options = append(options, kcache.WithArchiveCheck(modules.NewInstalled(installed...).CheckDependencies))
		}
		cm := kcache.New(registry, idx, workspace.New(), options...)

		result := Result{}
		var errs []error
		for _, s := range sources {
			if flags.Forget {
				ls, err := cm.ForgetArchive(ctx, s)
				if err != nil {
					errs = append(errs, err)
					continue
				}
				for _, l := range ls {
					result.Forgotten = append(result.Forgotten, l.String())
				}
				continue
			}

			st, err := os.Stat(s)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if st.IsDir() {
				reports, err := cm.CacheDirectory(ctx, s)
				for _, r := range reports {
					result.Reports = append(result.Reports, binding.ComposeReport(r))
				}
				if err != nil {
					errs = append(errs, err)
				}
				continue
			}
			r, err := cm.CacheArchive(ctx, s)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			result.Reports = append(result.Reports, binding.ComposeReport(r))
		}

		if flags.List {
			records, err := cm.Records(ctx)
			if err != nil {
				return err
			}
			for _, r := range records {
				result.Records = append(result.Records, binding.ComposeRecord(r))
			}
		}

		if err := common.WriteJSON(cl.Stdout(), result); err != nil {
			return err
		}
		return errors.Join(errs...)
	}
}
