package inspect

import (
	"context"
	"fmt"
	"log"

	"github.com/opst/karfab/cmd/kar/subcommands/common"
	"github.com/opst/karfab/pkg/kar"
	"github.com/youta-t/flarc"
)

type Flag struct {
	SupportedVersions string `flag:"supported-versions" metavar:"CONSTRAINT" help:"Versions of KAR to be accepted, as semver constraint."`
}

const ARG_KAR = "KAR"

// Summary is the output of inspect.
type Summary struct {
	Path         string   `json:"path"`
	LSID         string   `json:"lsid"`
	Version      string   `json:"version"`
	Openable     bool     `json:"openable"`
	Dependencies []string `json:"dependencies"`
	Entries      []Entry  `json:"entries"`
}

type Entry struct {
	Name       string            `json:"name"`
	LSID       string            `json:"lsid"`
	Type       string            `json:"type"`
	Handler    string            `json:"handler,omitempty"`
	DependsOn  []string          `json:"dependsOn,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

func New() (flarc.Command, error) {
	return flarc.NewCommand(
		"Show the manifest of KAR files.",
		Flag{SupportedVersions: kar.DefaultSupportedVersions},
		flarc.Args{
			{
				Name: ARG_KAR, Required: true, Repeatable: true,
				Help: "KAR file to be inspected.",
			},
		},
		common.NewTask(Task()),
		flarc.WithDescription(`
Read manifests of KAR files, and print them as JSON.

Archives with KAR-Version out of --supported-versions are rejected.
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
		summaries := []Summary{}
		for _, p := range cl.Args()[ARG_KAR] {
			s, err := Inspect(p, kar.WithSupportedVersions(cl.Flags().SupportedVersions))
			if err != nil {
				return fmt.Errorf("%s: %w", p, err)
			}
			summaries = append(summaries, s)
		}
		return common.WriteJSON(cl.Stdout(), summaries)
	}
}

func Inspect(path string, options ...kar.Option) (Summary, error) {
	f, err := kar.Open(path, options...)
	if err != nil {
		return Summary{}, err
	}
	defer f.Close()

	s := Summary{
		Path:         f.Path(),
		LSID:         f.LSID().String(),
		Version:      f.Version().Original(),
		Openable:     f.Openable(),
		Dependencies: append([]string{}, f.Dependencies()...),
		Entries:      []Entry{},
	}
	for _, e := range f.Entries() {
		entry := Entry{
			Name:       e.Name,
			LSID:       e.LSID.String(),
			Type:       e.Type,
			Handler:    e.Handler,
			Attributes: e.Attributes,
		}
		for _, d := range e.DependsOn {
			entry.DependsOn = append(entry.DependsOn, d.String())
		}
		s.Entries = append(s.Entries, entry)
	}
	return s, nil
}
