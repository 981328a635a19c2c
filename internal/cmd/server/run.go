package serverrun

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/sunng87/clojalk/internal/config"
	"github.com/sunng87/clojalk/internal/core"
	"github.com/sunng87/clojalk/internal/metrics"
	"github.com/sunng87/clojalk/internal/server/beanstalk"
	httpserver "github.com/sunng87/clojalk/internal/server/http"
	"github.com/sunng87/clojalk/internal/wal"
	logpkg "github.com/sunng87/clojalk/pkg/log"
)

// Options for Run.
type Options struct {
	Config config.Config
}

// Run starts the protocol and admin servers and blocks until ctx is
// cancelled. A WAL directory that cannot be created or a port that cannot
// be bound surfaces as an error, which the CLI turns into a non-zero exit.
func Run(ctx context.Context, opts Options) error {
	sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	cfg := opts.Config

	logger := newLogger(cfg.Log)

	var journal *wal.Log
	var recovered map[uint64]wal.Record
	if cfg.WAL.Enable {
		var err error
		journal, err = wal.Open(wal.Options{Dir: cfg.WAL.Dir, Files: cfg.WAL.Files, Fsync: cfg.WAL.Fsync})
		if err != nil {
			return err
		}
		defer journal.Close()
		recovered, err = journal.Recover()
		if err != nil {
			return err
		}
	}

	var walAppends func() uint64
	if journal != nil {
		walAppends = journal.Appends
	}
	coll := metrics.NewCollector(walAppends)

	eng := core.New(core.Options{WAL: journal, Observer: coll, Drain: cfg.Drain})
	if len(recovered) > 0 {
		n := eng.Restore(recovered)
		logger.Info("recovered jobs from wal", logpkg.Int("jobs", n), logpkg.Str("dir", cfg.WAL.Dir))
	}

	logger.Info("starting clojalkd",
		logpkg.Str("addr", cfg.ServerAddr()),
		logpkg.Str("admin", cfg.AdminAddr()),
		logpkg.Bool("wal", cfg.WAL.Enable),
		logpkg.Bool("drain", cfg.Drain),
	)

	bsrv := beanstalk.New(eng, logger, coll)
	bsrv.StartSweeper(sctx, core.SweepInterval)

	// SIGUSR1 toggles drain mode at runtime, as beanstalkd does.
	drainCh := make(chan os.Signal, 1)
	signal.Notify(drainCh, syscall.SIGUSR1)
	defer signal.Stop(drainCh)
	go func() {
		for {
			select {
			case <-sctx.Done():
				return
			case <-drainCh:
				on := eng.ToggleDrain()
				logger.Info("drain mode toggled", logpkg.Bool("drain", on))
			}
		}
	}()

	errCh := make(chan error, 2)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := bsrv.ListenAndServe(sctx, cfg.ServerAddr()); err != nil && sctx.Err() == nil {
			errCh <- err
		}
	}()

	var hsrv *httpserver.Server
	if addr := cfg.AdminAddr(); addr != "" {
		hsrv = httpserver.New(eng, coll)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := hsrv.ListenAndServe(sctx, addr); err != nil && sctx.Err() == nil {
				errCh <- err
			}
		}()
	}

	var err error
	select {
	case <-sctx.Done():
	case err = <-errCh:
		stop()
	}
	bsrv.Close()
	if hsrv != nil {
		hsrv.Close()
	}
	wg.Wait()
	return err
}

func newLogger(cfg config.LogConfig) logpkg.Logger {
	level, lerr := logpkg.ParseLevel(cfg.Level)
	var formatter logpkg.Formatter = &logpkg.TextFormatter{}
	if cfg.Format == "json" {
		formatter = &logpkg.JSONFormatter{}
	}
	logger := logpkg.NewLogger(
		logpkg.WithLevel(level),
		logpkg.WithFormatter(formatter),
		logpkg.WithOutput(logpkg.NewConsoleOutput()),
	)
	if lerr != nil {
		logger.Warn("unknown log level, using info", logpkg.Str("level", cfg.Level))
	}
	return logger
}
