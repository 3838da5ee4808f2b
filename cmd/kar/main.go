package main

import (
	"context"
	"os"
	"os/signal"
	"path"

	subcache "github.com/opst/karfab/cmd/kar/subcommands/cache"
	subfetch "github.com/opst/karfab/cmd/kar/subcommands/fetch"
	subinspect "github.com/opst/karfab/cmd/kar/subcommands/inspect"
	"github.com/opst/karfab/cmd/kar/subcommands/logger"
	subpack "github.com/opst/karfab/cmd/kar/subcommands/pack"
	substats "github.com/opst/karfab/cmd/kar/subcommands/stats"
	subver "github.com/opst/karfab/cmd/kar/subcommands/version"
	"github.com/opst/karfab/pkg/utils/try"
	"github.com/youta-t/flarc"
)

func main() {
	name := path.Base(os.Args[0])
	logger := logger.New(os.Stderr, name)

	ctx, cancel := signal.NotifyContext(
		context.Background(), os.Interrupt, os.Kill,
	)
	defer cancel()

	inspect := try.To(subinspect.New()).OrFatal(logger)
	pack := try.To(subpack.New()).OrFatal(logger)
	cache := try.To(subcache.New()).OrFatal(logger)
	fetch := try.To(subfetch.New()).OrFatal(logger)
	stats := try.To(substats.New()).OrFatal(logger)
	version := try.To(subver.New()).OrFatal(logger)

	kar := try.To(
		flarc.NewCommandGroup(
			"Kepler archive (KAR) tools",
			struct{}{},
			flarc.WithSubcommand("inspect", inspect),
			flarc.WithSubcommand("pack", pack),
			flarc.WithSubcommand("cache", cache),
			flarc.WithSubcommand("fetch", fetch),
			flarc.WithSubcommand("stats", stats),
			flarc.WithSubcommand("version", version),
		),
	).OrFatal(logger)

	os.Exit(flarc.Run(ctx, kar, flarc.WithHelp(true)))
}
