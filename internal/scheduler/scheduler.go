package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"PillarVote/internal/model"
	"PillarVote/internal/notifier"
	"PillarVote/internal/recorder"
)

const (
	defaultHistory = 5
	maxHistory     = 50
)

// ErrPassRunning is returned when a pass is requested while another is in progress.
var ErrPassRunning = errors.New("a pass is already running")

// Runner performs one pass for a ticker.
type Runner interface {
	Run(ctx context.Context, ticker string) (*model.Run, error)
}

// Scheduler re-runs passes on a cron schedule and answers chat commands.
type Scheduler struct {
	Cron     *cron.Cron
	Runner   Runner
	Notifier *notifier.TelegramNotifier
	Recorder recorder.Recorder
	Ticker   string
	Out      io.Writer
	Ctx      context.Context

	// serialises cron ticks, the startup pass and /run
	running sync.Mutex
}

// NewScheduler creates a Scheduler. The cron spec has a seconds field; a pass still
// running when the next tick fires makes that tick a no-op.
func NewScheduler(ctx context.Context, runner Runner, tn *notifier.TelegramNotifier, rec recorder.Recorder, ticker string) *Scheduler {
	logger := cronLogger{}
	return &Scheduler{
		Cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		Runner:   runner,
		Notifier: tn,
		Recorder: rec,
		Ticker:   ticker,
		Out:      os.Stdout,
		Ctx:      ctx,
	}
}

// Register adds the watch job.
func (s *Scheduler) Register(spec string) error {
	if strings.TrimSpace(spec) == "" {
		return fmt.Errorf("empty schedule")
	}
	if _, err := s.Cron.AddFunc(spec, s.RunNow); err != nil {
		return fmt.Errorf("register watch task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	log.Info().Str("ticker", s.Ticker).Msg("scheduler started")
}

// Stop stops the cron scheduler and waits for a running pass to finish.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	log.Info().Msg("scheduler stopped")
}

// RunNow executes one pass for the configured ticker.
func (s *Scheduler) RunNow() {
	_, _ = s.RunPass(s.Ticker)
}

// RunPass runs, prints and pushes one pass. Failures are reported, not retried.
// A request arriving while another pass runs is dropped with ErrPassRunning.
func (s *Scheduler) RunPass(ticker string) (*model.Run, error) {
	if !s.running.TryLock() {
		log.Warn().Str("ticker", ticker).Msg("pass already running, skipping")
		return nil, ErrPassRunning
	}
	defer s.running.Unlock()

	log.Info().Str("ticker", ticker).Msg("running pass")
	run, err := s.Runner.Run(s.Ctx, ticker)
	if err != nil {
		log.Error().Err(err).Str("ticker", ticker).Msg("pass failed")
		s.trySend(notifier.FormatFailure(ticker, err))
		return nil, err
	}
	report := notifier.FormatRunReport(run)
	fmt.Fprint(s.Out, report)
	s.trySend(report)
	return run, nil
}

// HandleCommand processes a chat command and returns a reply.
func (s *Scheduler) HandleCommand(ctx context.Context, command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return helpText
	}
	// commands addressed as /run@botname
	name := strings.ToLower(strings.SplitN(fields[0], "@", 2)[0])
	args := fields[1:]

	switch name {
	case "/run":
		ticker := s.Ticker
		if len(args) > 0 {
			ticker = strings.ToUpper(args[0])
		}
		// RunPass pushes the report or the failure itself
		if _, err := s.RunPass(ticker); errors.Is(err, ErrPassRunning) {
			return "A pass is already running, try again shortly."
		}
		return ""
	case "/history":
		n := defaultHistory
		ticker := s.Ticker
		for _, a := range args {
			if v, err := strconv.Atoi(a); err == nil {
				n = min(max(v, 1), maxHistory)
			} else {
				ticker = strings.ToUpper(a)
			}
		}
		runs, err := s.Recorder.RecentRuns(ctx, ticker, n)
		if err != nil {
			return fmt.Sprintf("history unavailable: %v", err)
		}
		return notifier.FormatHistory(ticker, runs)
	default:
		return helpText
	}
}

const helpText = "Commands:\n/run [TICKER] - run a pass now\n/history [TICKER] [N] - list stored runs"

func (s *Scheduler) trySend(text string) {
	if !s.Notifier.Enabled() {
		return
	}
	if err := s.Notifier.SendWithRetry(s.Ctx, text, 3); err != nil {
		log.Error().Err(err).Msg("send notification failed")
	}
}

// cronLogger routes cron's own messages to zerolog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	log.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	log.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
