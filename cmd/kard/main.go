package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/opst/karfab/pkg/auth"
	"github.com/opst/karfab/pkg/buildtime"
	"github.com/opst/karfab/pkg/cache"
	"github.com/opst/karfab/pkg/cache/index"
	"github.com/opst/karfab/pkg/cache/index/bolt"
	"github.com/opst/karfab/pkg/cache/index/memory"
	"github.com/opst/karfab/pkg/cache/index/postgres"
	"github.com/opst/karfab/pkg/configs"
	kpool "github.com/opst/karfab/pkg/conn/postgres/pool"
	"github.com/opst/karfab/pkg/kar"
	"github.com/opst/karfab/pkg/kar/handler"
	"github.com/opst/karfab/pkg/kar/types"
	"github.com/opst/karfab/pkg/keychain"
	"github.com/opst/karfab/pkg/keychain/key"
	"github.com/opst/karfab/pkg/loop"
	"github.com/opst/karfab/pkg/modules"
	"github.com/opst/karfab/pkg/watch"
	"github.com/opst/karfab/pkg/workspace"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	pconfig := flag.String(
		"config", os.Getenv(configs.EnvConfig), "path to config file",
	)
	loglevel := flag.String("loglevel", "warn", "log level. debug|info|warn|error|off")
	pversion := flag.Bool("version", false, "show version")
	flag.Parse()

	if *pversion {
		fmt.Println(buildtime.VersionString())
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, os.Kill)
	defer cancel()

	conf, err := configs.LoadConfig(*pconfig)
	if err != nil {
		log.Fatalf("can not read configration: %s", err)
	}

	logger := log.New(os.Stderr, "[kard] ", log.LstdFlags)

	idx, err := openIndex(ctx, conf.Cache().Index())
	if err != nil {
		log.Fatalf("can not open index: %s", err)
	}
	defer idx.Close()

	registry, err := handler.Defaults(types.Default(), conf.KAR().ModuleDirectory())
	if err != nil {
		log.Fatalf("can not build handlers: %s", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	installed := modules.NewInstalled(conf.Modules().Installed()...)
	ws := workspace.New()
	cm := cache.New(
		registry, idx, ws,
		cache.WithLogger(logger),
		cache.WithMaxEntries(conf.Cache().MaxEntries()),
		cache.WithArchiveOptions(kar.WithSupportedVersions(conf.KAR().SupportedVersions())),
		cache.WithArchiveCheck(installed.CheckDependencies),
		cache.WithRegisterer(reg),
	)

	am, verify, err := buildAuth(conf.Auth(), logger)
	if err != nil {
		log.Fatalf("can not configure authentication: %s", err)
	}

	dirs := conf.KAR().Directories()
	for _, d := range dirs {
		reports, err := cm.CacheDirectory(ctx, d)
		if err != nil {
			logger.Printf("some archives in %s are not cached: %s", d, err)
		}
		logger.Printf("cached %d archives in %s", len(reports), d)
	}

	go func() {
		err := watch.Watch(ctx, dirs, func(ev watch.Event) {
			switch ev.Op {
			case watch.Created:
				if _, err := cm.CacheArchive(ctx, ev.Path); err != nil {
					logger.Printf("failed to cache %s: %s", ev.Path, err)
				}
			case watch.Removed:
				if _, err := cm.ForgetArchive(ctx, ev.Path); err != nil {
					logger.Printf("failed to forget %s: %s", ev.Path, err)
				}
			}
		}, watch.WithLogger(logger))
		if err != nil {
			logger.Printf("stop watching directories: %s", err)
		}
	}()

	if period := conf.KAR().RescanInterval(); 0 < period {
		go func() {
			loop.Start(ctx, cache.ReconcileReport{}, func(ctx context.Context, _ cache.ReconcileReport) (cache.ReconcileReport, loop.Next) {
				report, err := cm.Reconcile(ctx, dirs)
				if err != nil {
					logger.Printf("reconciling directories: %s", err)
				}
				if len(report.Cached) != 0 || len(report.Forgotten) != 0 {
					logger.Printf(
						"reconciled directories: %d archives cached, %d entries forgotten",
						len(report.Cached), len(report.Forgotten),
					)
				}
				return report, loop.Continue(period)
			})
		}()
	}

	server := BuildServer(Services{
		Cache:     cm,
		Workspace: ws,
		Auth:      am,
		Verify:    verify,
		UploadDir: dirs[0],
		Metrics:   reg,
	}, *loglevel)
	for _, r := range server.Routes() {
		server.Logger.Debugf("- mount handler: %s %s", strings.ToUpper(r.Method), r.Path)
	}

	ch := make(chan error, 1)
	go func() {
		defer close(ch)
		if err := server.Start(fmt.Sprintf(":%d", conf.Port())); err != nil && err != http.ErrServerClosed {
			ch <- err
		}
	}()

	exit := 0
	select {
	case <-ctx.Done(): // wait
		if err := ctx.Err(); err != nil {
			server.Logger.Infof("context has been done: %s, cause: %s", err, context.Cause(ctx))
		}
	case err := <-ch:
		if err != nil {
			server.Logger.Error("server stops with error:", err)
			exit = 1
		}
	}

	server.Logger.Info("shutting down...")
	qctx, qcancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer qcancel()

	if err := server.Shutdown(qctx); err != nil {
		server.Logger.Errorf("Shutdown with error. %+v", err)
		exit = 1
	}
	if exit != 0 {
		idx.Close()
		os.Exit(exit)
	}
}

func openIndex(ctx context.Context, conf *configs.IndexConfig) (index.Interface, error) {
	switch conf.Kind() {
	case configs.IndexBolt:
		return bolt.Open(conf.Path())
	case configs.IndexPostgres:
		pool, err := kpool.Connect(ctx, conf.DSN())
		if err != nil {
			return nil, err
		}
		idx, err := postgres.New(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, err
		}
		return idx, nil
	default:
		return memory.New(), nil
	}
}

// buildAuth builds authentication manager with services for domains.
//
// The returned verifier accepts tokens issued by local domains.
// It is nil when there are no local domains.
func buildAuth(conf *configs.AuthConfig, logger *log.Logger) (*auth.Manager, func(string) (*auth.Claims, error), error) {
	kc := keychain.New(keychain.WithPolicy(key.HS256(conf.KeyTTL(), 2048/8)))

	domains := []auth.Domain{}
	localOptions := []auth.LocalOption{}
	hasLocal := false
	for _, dc := range conf.Domains() {
		d := dc.Domain()
		domains = append(domains, d)
		if d.Service == auth.ServiceLocal {
			hasLocal = true
			localOptions = append(localOptions, auth.WithUsers(d.Name, dc.Users()))
		}
	}
	dl, err := auth.NewDomainList(domains...)
	if err != nil {
		return nil, nil, err
	}

	local := auth.NewLocalService(kc, localOptions...)
	am := auth.NewManager(
		dl, auth.NewProxyRepository(),
		auth.WithService(auth.ServiceLocal, local),
		auth.WithService(auth.ServiceHTTP, auth.NewHTTPService(&http.Client{Timeout: 30 * time.Second})),
		auth.WithLogger(logger),
	)

	if !hasLocal {
		logger.Println("no local domains. APIs are not protected.")
		return am, nil, nil
	}
	return am, local.Verify, nil
}
