package scheduler

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"PillarVote/internal/model"
	"PillarVote/internal/notifier"
	"PillarVote/internal/recorder"
)

type fakeRunner struct {
	mu      sync.Mutex
	tickers []string
	err     error
}

func (f *fakeRunner) Run(_ context.Context, ticker string) (*model.Run, error) {
	f.mu.Lock()
	f.tickers = append(f.tickers, ticker)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &model.Run{
		ID:     1,
		Ticker: ticker,
		AsOf:   time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC),
		Close:  10,
		Votes:  []model.Vote{model.NewVote(model.PillarTechnicals, "RSI", model.SignalBuy, 0.6, "oversold", nil)},
	}, nil
}

func (f *fakeRunner) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.tickers...)
}

type historyRecorder struct {
	recorder.NoopRecorder
	ticker string
	limit  int
}

func (h *historyRecorder) RecentRuns(_ context.Context, ticker string, limit int) ([]model.Run, error) {
	h.ticker, h.limit = ticker, limit
	return []model.Run{{ID: 3, Ticker: ticker}}, nil
}

func newTestScheduler(runner Runner, rec recorder.Recorder, tn *notifier.TelegramNotifier) (*Scheduler, *bytes.Buffer) {
	s := NewScheduler(context.Background(), runner, tn, rec, "JPM")
	var out bytes.Buffer
	s.Out = &out
	return s, &out
}

func TestRunPass_PrintsReport(t *testing.T) {
	s, out := newTestScheduler(&fakeRunner{}, recorder.NewNoopRecorder(), nil)

	run, err := s.RunPass("AAPL")
	require.NoError(t, err)
	assert.Equal(t, "AAPL", run.Ticker)
	assert.Contains(t, out.String(), "RUN 1  [AAPL @ 2025-01-02]")
	assert.Contains(t, out.String(), "vote=+1")
}

func TestRunPass_FailurePushed(t *testing.T) {
	var (
		mu    sync.Mutex
		texts []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		texts = append(texts, gjson.GetBytes(b, "text").String())
		mu.Unlock()
	}))
	defer srv.Close()

	tn := notifier.NewTelegramNotifier("T", "1", "")
	tn.BaseURL = srv.URL
	s, out := newTestScheduler(&fakeRunner{err: errors.New("no price data")}, recorder.NewNoopRecorder(), tn)

	_, err := s.RunPass("JPM")
	require.Error(t, err)
	assert.Empty(t, out.String())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, texts, 1)
	assert.Contains(t, texts[0], "Run for JPM failed: no price data")
}

func TestHandleCommand(t *testing.T) {
	runner := &fakeRunner{}
	rec := &historyRecorder{}
	s, _ := newTestScheduler(runner, rec, nil)
	ctx := context.Background()

	assert.Equal(t, "", s.HandleCommand(ctx, "/run"))
	assert.Equal(t, "", s.HandleCommand(ctx, "/run@pillarbot msft"))
	assert.Equal(t, []string{"JPM", "MSFT"}, runner.calls())

	reply := s.HandleCommand(ctx, "/history aapl 500")
	assert.Equal(t, "AAPL", rec.ticker)
	assert.Equal(t, maxHistory, rec.limit)
	assert.Contains(t, reply, "Last 1 run(s) for AAPL")

	s.HandleCommand(ctx, "/history")
	assert.Equal(t, "JPM", rec.ticker)
	assert.Equal(t, defaultHistory, rec.limit)

	assert.Equal(t, helpText, s.HandleCommand(ctx, "hello"))
	assert.Equal(t, helpText, s.HandleCommand(ctx, "  "))
}

func TestRunPass_SkipsWhilePassRunning(t *testing.T) {
	runner := &fakeRunner{}
	s, out := newTestScheduler(runner, recorder.NewNoopRecorder(), nil)

	s.running.Lock()
	_, err := s.RunPass("JPM")
	assert.ErrorIs(t, err, ErrPassRunning)
	assert.Equal(t, "A pass is already running, try again shortly.", s.HandleCommand(context.Background(), "/run MSFT"))
	assert.Empty(t, runner.calls())
	assert.Empty(t, out.String())
	s.running.Unlock()

	_, err = s.RunPass("JPM")
	require.NoError(t, err)
	assert.Equal(t, []string{"JPM"}, runner.calls())
}

func TestRegister(t *testing.T) {
	s, _ := newTestScheduler(&fakeRunner{}, recorder.NewNoopRecorder(), nil)
	assert.Error(t, s.Register(""))
	assert.Error(t, s.Register("not a cron"))
	require.NoError(t, s.Register("0 30 16 * * 1-5"))
	assert.Len(t, s.Cron.Entries(), 1)
}

func TestWatch_FiresPasses(t *testing.T) {
	runner := &fakeRunner{}
	s, _ := newTestScheduler(runner, recorder.NewNoopRecorder(), nil)
	require.NoError(t, s.Register("* * * * * *"))

	s.Start()
	assert.Eventually(t, func() bool { return len(runner.calls()) > 0 }, 3*time.Second, 50*time.Millisecond)
	s.Stop()
	assert.Equal(t, "JPM", runner.calls()[0])
}
