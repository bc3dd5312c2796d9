package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"farebot/internal/classify"
	"farebot/internal/cleanup"
	"farebot/internal/config"
	"farebot/internal/fetch"
	"farebot/internal/gate"
	"farebot/internal/plans"
	"farebot/internal/storage"
	"farebot/internal/transport/telegram"
	"farebot/internal/watch"
	logx "farebot/pkg/logx"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config (yaml or json)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfgPath); err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfgPath string) error {
	mgr, err := config.NewManager(cfgPath, logx.NewConsole("info"))
	if err != nil {
		return err
	}
	defer mgr.Close()
	cfg := mgr.Current()

	log, closeLog := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File:    logx.FileConfig{Enabled: cfg.Logging.File.Enabled, Path: cfg.Logging.File.Path},
	})
	defer func() { _ = closeLog() }()

	busyTimeout, _ := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	store, err := storage.Open(storage.Config{
		Path:        cfg.Storage.Path,
		BusyTimeout: busyTimeout,
		HistoryKeep: cfg.Storage.HistoryKeep,
	}, log.With(logx.String("comp", "storage")))
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	planDefs, err := cfg.PlanDefs()
	if err != nil {
		return err
	}
	planSvc := plans.New(planDefs, cfg.DefaultPlan,
		plans.SettingsResolver{Store: store},
		log.With(logx.String("comp", "plans")))

	gateSvc := gate.New(store, planSvc, log.With(logx.String("comp", "gate")))
	cleanupSvc := cleanup.New(store, log.With(logx.String("comp", "cleanup")))

	pollTimeout, _ := config.ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout)
	dispatcher, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, log.With(logx.String("comp", "telegram")))
	if err != nil {
		return err
	}
	defer dispatcher.Stop()

	feedTimeout, _ := config.ParseDurationField("feed.timeout", cfg.Feed.Timeout)
	fetcher, err := fetch.New(fetch.Config{
		BaseURL: cfg.Feed.BaseURL,
		Timeout: feedTimeout,
	}, log.With(logx.String("comp", "fetch")))
	if err != nil {
		return err
	}

	policy := func() classify.Policy { return mgr.Current().ClassifierPolicy() }
	watchSvc := watch.New(watch.Config{
		Enabled:    cfg.Watch.Enabled,
		Schedule:   cfg.Watch.Schedule,
		Workers:    cfg.Watch.Workers,
		QueueSize:  cfg.Watch.QueueSize,
		RatePerSec: cfg.Watch.RatePerSec,
		RetryMax:   cfg.Watch.RetryMax,
	}, store, fetcher, gateSvc, cleanupSvc,
		dispatcher, policy, log.With(logx.String("comp", "watch")))

	// Quota/cooldown knobs follow config edits without a restart.
	mgr.Subscribe(func(c *config.Config) {
		defs, err := c.PlanDefs()
		if err != nil {
			log.Warn("reloaded plans rejected", logx.Err(err))
			return
		}
		planSvc.Apply(defs, c.DefaultPlan)
	})
	if err := mgr.Watch(ctx); err != nil {
		log.Warn("config watch unavailable", logx.Err(err))
	}

	if err := watchSvc.Start(ctx); err != nil {
		return err
	}

	// Best-effort; no-op outside systemd.
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)

	log.Info("farebot started")
	<-ctx.Done()

	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	watchSvc.Stop(stopCtx)
	log.Info("farebot stopped")
	return nil
}
