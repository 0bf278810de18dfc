package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"PillarVote/internal/collector"
	"PillarVote/internal/config"
	"PillarVote/internal/logger"
	"PillarVote/internal/notifier"
	"PillarVote/internal/recorder"
	"PillarVote/internal/scheduler"
	"PillarVote/internal/tool"
)

func main() {
	// .env is optional; real environment variables win
	_ = godotenv.Load(".env")

	defaultCfg := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		defaultCfg = v
	}
	cfgPath := flag.String("config", defaultCfg, "path to config.yaml (env CONFIG_PATH)")
	tickerFlag := flag.String("ticker", "", "override run.default_ticker")
	watch := flag.Bool("watch", false, "re-run on run.schedule until interrupted")
	history := flag.Int("history", 0, "list the last N stored runs for the ticker and exit")
	flag.Parse()

	if err := run(*cfgPath, *tickerFlag, *watch, *history); err != nil {
		log.Error().Err(err).Msg("pillarvote failed")
		if errors.Is(err, config.ErrNoTicker) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run(cfgPath, tickerOverride string, watch bool, history int) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := logger.Setup(cfg.Log.Level, cfg.Log.Format); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}
	ticker, err := cfg.ResolveTicker(tickerOverride)
	if err != nil {
		return err
	}

	// Init recorder
	var rec recorder.Recorder
	dbPath := cfg.Run.DBPath
	if dbPath != "" {
		sr, err := recorder.NewSQLiteRecorder(dbPath)
		if err != nil {
			log.Warn().Err(err).Msg("init sqlite recorder failed, using noop")
			rec = recorder.NewNoopRecorder()
			dbPath = ""
		} else {
			rec = sr
		}
	} else {
		rec = recorder.NewNoopRecorder()
	}
	defer rec.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if history > 0 {
		runs, err := rec.RecentRuns(ctx, ticker, history)
		if err != nil {
			return fmt.Errorf("load history: %w", err)
		}
		fmt.Print(notifier.FormatHistory(ticker, runs))
		return nil
	}

	deps := tool.NewDeps(ctx, cfg, rec)
	tools, err := tool.Default().Build(cfg.Run.Tools, cfg, deps)
	if err != nil {
		return fmt.Errorf("build tools: %w", err)
	}

	fetcher := collector.NewFetcher(cfg)
	col := collector.NewCollector(fetcher, rec, tools)
	col.LookbackDays = cfg.Fetch.LookbackDays
	col.Workers = cfg.Run.Workers
	log.Info().Str("source", fetcher.Name()).Str("ticker", ticker).Int("tools", len(tools)).
		Bool("sentiment", cfg.Sentiment.Enabled).Msg("pillarvote starting")

	tn := notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Fetch.Proxy)

	if watch {
		return runWatch(ctx, cfg.Run.Schedule, col, tn, rec, ticker)
	}

	result, err := col.Run(ctx, ticker)
	if err != nil {
		return err
	}
	report := notifier.FormatRunReport(result)
	fmt.Print(report)
	fmt.Print(notifier.FormatStorageHint(dbPath))

	if tn.Enabled() {
		if err := tn.SendWithRetry(ctx, report, 3); err != nil {
			log.Error().Err(err).Msg("send report failed")
		}
	}
	return nil
}

func runWatch(ctx context.Context, spec string, col *collector.Collector, tn *notifier.TelegramNotifier, rec recorder.Recorder, ticker string) error {
	sched := scheduler.NewScheduler(ctx, col, tn, rec, ticker)
	if err := sched.Register(spec); err != nil {
		return err
	}
	sched.Start()
	defer sched.Stop()

	if tn.Enabled() {
		go tn.StartPolling(ctx, sched.HandleCommand)
		log.Info().Msg("telegram polling started")
	}

	go sched.RunNow()

	log.Info().Str("schedule", spec).Msg("watching, press Ctrl+C to stop")
	<-ctx.Done()
	log.Info().Msg("shutdown signal received, stopping")
	return nil
}
