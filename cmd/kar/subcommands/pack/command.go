package pack

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/opst/karfab/cmd/kar/subcommands/common"
	kio "github.com/opst/karfab/pkg/io"
	"github.com/opst/karfab/pkg/kar"
	"github.com/opst/karfab/pkg/kar/handler"
	"github.com/opst/karfab/pkg/kar/types"
	"github.com/opst/karfab/pkg/lsid"
	"github.com/youta-t/flarc"
)

type Flag struct {
	Output    string   `flag:"output" alias:"o" metavar:"path/to/file.kar" help:"KAR file to be written."`
	Authority string   `flag:"authority" help:"Authority of LSIDs to be minted."`
	Namespace string   `flag:"namespace" help:"Namespace of LSIDs to be minted."`
	Type      string   `flag:"type" alias:"t" help:"Type of all entries. When it is empty, types are guessed from file extensions."`
	Depends   []string `flag:"depends" metavar:"MODULE" help:"Module which the archive requires, like \"actors-2.5\". Repeatable."`
	Version   string   `flag:"kar-version" help:"KAR-Version of the archive. Empty means legacy 1.0 archive."`
	Openable  bool     `flag:"openable" help:"Mark the archive as openable."`
}

const ARG_FILE = "FILE"

func New() (flarc.Command, error) {
	return flarc.NewCommand(
		"Build a KAR file from files.",
		Flag{
			Authority: "kepler-project.org",
			Namespace: "kar",
			Version:   "2.1",
		},
		flarc.Args{
			{
				Name: ARG_FILE, Required: true, Repeatable: true,
				Help: "File to be archived. Entries are named with base names of files.",
			},
		},
		common.NewTask(Task()),
		flarc.WithDescription(`
Build a KAR file with a manifest, minting new LSIDs for the archive and its entries.

Types of entries are guessed from file extensions unless --type is given:

	.xml          ptolemy.actor.TypedAtomicActor
	.jar          java.util.jar.JarFile
	.txt .html    org.kepler.documentation.Document
`),
	)
}

// GuessType returns the type of entry for the file name. It returns empty string if unknown.
func GuessType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xml", ".moml":
		return types.TypedAtomicActor
	case ".jar":
		return types.JarFile
	case ".txt", ".html", ".htm", ".md":
		return types.Document
	default:
		return ""
	}
}

func Task() common.Task[Flag] {
	return func(
		ctx context.Context,
		logger *log.Logger,
		cl flarc.Commandline[Flag],
		params []any,
	) error {
		flags := cl.Flags()
		if flags.Output == "" {
			return fmt.Errorf("%w: --output is required", flarc.ErrUsage)
		}
		if flags.Authority == "" || flags.Namespace == "" {
			return fmt.Errorf("%w: --authority and --namespace should not be empty", flarc.ErrUsage)
		}

		specs := []kar.EntrySpec{}
		for _, p := range cl.Args()[ARG_FILE] {
			name := filepath.Base(p)
			typ := flags.Type
			if typ == "" {
				typ = GuessType(name)
			}
			if typ == "" {
				return fmt.Errorf("%w: type of %s is unknown. specify --type", flarc.ErrUsage, p)
			}
			content, err := os.ReadFile(p)
			if err != nil {
				return err
			}
			spec := kar.EntrySpec{
				Name:    name,
				Type:    typ,
				LSID:    lsid.New(flags.Authority, flags.Namespace),
				Content: content,
			}
			if typ == types.Document {
				spec.Attributes = map[string]string{handler.AttrTitle: strings.TrimSuffix(name, filepath.Ext(name))}
			}
			specs = append(specs, spec)
		}

		options := []kar.WriterOption{kar.WithVersion(flags.Version)}
		if len(flags.Depends) != 0 {
			options = append(options, kar.WithDependencies(flags.Depends...))
		}
		if flags.Openable {
			options = append(options, kar.AsOpenable())
		}

		archive := lsid.New(flags.Authority, flags.Namespace)
		if err := write(flags.Output, archive, specs, options...); err != nil {
			return err
		}
		logger.Printf("packed %d entries into %s (%s)", len(specs), flags.Output, archive)

		return common.WriteJSON(cl.Stdout(), map[string]string{
			"path": flags.Output,
			"lsid": archive.String(),
		})
	}
}

func write(dest string, archive lsid.LSID, specs []kar.EntrySpec, options ...kar.WriterOption) (err error) {
	f, err := kio.CreateAll(dest, os.FileMode(0o644), os.FileMode(0o755))
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(dest)
		}
	}()

	w := kar.NewWriter(f, archive, options...)
	for _, s := range specs {
		if err := w.Add(s); err != nil {
			return err
		}
	}
	return w.Close()
}
