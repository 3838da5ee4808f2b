package stats

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/opst/karfab/cmd/kar/subcommands/common"
	xe "github.com/opst/karfab/pkg/errors"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/youta-t/flarc"
)

type Flag struct {
	Server string `flag:"server" alias:"s" metavar:"URL" help:"Base URL of kard."`
}

const metricsPrefix = "karfab_cache_"

// Stats is the state of the object cache of a kard.
type Stats struct {
	Entries   int64 `json:"entries"`
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`

	// HitRatio is hits / (hits + misses). It is 0 when there are no lookups.
	HitRatio float64 `json:"hitRatio"`
}

func New() (flarc.Command, error) {
	return flarc.NewCommand(
		"Show cache statistics of kard.",
		Flag{Server: "http://localhost:8080"},
		flarc.Args{},
		common.NewTask(Task()),
		flarc.WithDescription(`
Show statistics of the object cache in kard, read from its /metrics endpoint.
`),
	)
}

type taskOption struct {
	client *http.Client
}

type TaskOption func(*taskOption) *taskOption

func WithHTTPClient(c *http.Client) TaskOption {
	return func(to *taskOption) *taskOption {
		to.client = c
		return to
	}
}

func Task(options ...TaskOption) common.Task[Flag] {
	opt := &taskOption{client: http.DefaultClient}
	for _, o := range options {
		opt = o(opt)
	}

	return func(
		ctx context.Context,
		logger *log.Logger,
		cl flarc.Commandline[Flag],
		params []any,
	) error {
		endpoint, err := url.JoinPath(cl.Flags().Server, "metrics/")
		if err != nil {
			return fmt.Errorf("%w: --server: %w", flarc.ErrUsage, err)
		}
		families, err := Scrape(ctx, opt.client, endpoint)
		if err != nil {
			return err
		}
		return common.WriteJSON(cl.Stdout(), Summarize(families))
	}
}

// Scrape reads metrics in text exposition format from endpoint.
func Scrape(ctx context.Context, client *http.Client, endpoint string) (map[string]*dto.MetricFamily, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", string(expfmt.NewFormat(expfmt.TypeTextPlain)))
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, xe.WrapWithNote(
			fmt.Sprintf("GET %s: %s", endpoint, resp.Status), xe.ErrNotFound,
		)
	}

	var p expfmt.TextParser
	return p.TextToMetricFamilies(resp.Body)
}

// Summarize picks metrics of the object cache. Missing metrics are counted as 0.
func Summarize(families map[string]*dto.MetricFamily) Stats {
	s := Stats{}
	for name, mf := range families {
		key, ok := strings.CutPrefix(name, metricsPrefix)
		if !ok {
			continue
		}
		var v float64
		for _, m := range mf.GetMetric() {
			switch mf.GetType() {
			case dto.MetricType_COUNTER:
				v += m.GetCounter().GetValue()
			case dto.MetricType_GAUGE:
				v += m.GetGauge().GetValue()
			}
		}
		switch key {
		case "entries":
			s.Entries = int64(v)
		case "hits_total":
			s.Hits = int64(v)
		case "misses_total":
			s.Misses = int64(v)
		case "evictions_total":
			s.Evictions = int64(v)
		}
	}
	if lookups := s.Hits + s.Misses; lookups > 0 {
		s.HitRatio = float64(s.Hits) / float64(lookups)
	}
	return s
}
