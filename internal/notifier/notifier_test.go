package notifier

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"PillarVote/internal/model"
)

func sampleRun() *model.Run {
	return &model.Run{
		ID:     7,
		Ticker: "JPM",
		AsOf:   time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC),
		Close:  231.456,
		Votes: []model.Vote{
			model.NewVote(model.PillarTechnicals, "RSI", model.SignalSell, 0.6, "RSI 85.0 >= 80", nil),
			model.NewVote(model.PillarFundamentals, "PE_RATIO", model.SignalBuy, 0.9, "P/E 9.1 < 15", nil),
			model.HoldVote(model.PillarTechnicals, "HIST_SIM", strings.Repeat("r", 300), nil),
			model.HoldVote(model.PillarSentiment, "REDDIT_SENTIMENT", "sentiment disabled", nil),
		},
		CreatedAt: time.Date(2025, 3, 14, 20, 0, 0, 0, time.UTC),
	}
}

func TestFormatRunReport(t *testing.T) {
	out := FormatRunReport(sampleRun())

	assert.Contains(t, out, "RUN 7  [JPM @ 2025-03-14]  close=231.46")
	assert.Contains(t, out, "               RSI: SELL   vote=-1  conf=0.60  :: RSI 85.0 >= 80")
	assert.Contains(t, out, "PE_RATIO: BUY    vote=+1  conf=0.90")
	assert.Contains(t, out, "vote=+0")
	assert.Contains(t, out, "Tally: BUY=1 HOLD=2 SELL=1")
	assert.NotContains(t, out, strings.Repeat("r", maxReasonLen+1))

	tech := strings.Index(out, "--- TECHNICALS ---")
	fund := strings.Index(out, "--- FUNDAMENTALS ---")
	sent := strings.Index(out, "--- SENTIMENT ---")
	require.True(t, tech >= 0 && fund >= 0 && sent >= 0)
	assert.Less(t, tech, fund)
	assert.Less(t, fund, sent)
	// HIST_SIM is grouped with RSI under technicals
	assert.Less(t, strings.Index(out, "HIST_SIM"), fund)
}

func TestFormatStorageHint(t *testing.T) {
	assert.Contains(t, FormatStorageHint("data/votes.sqlite"), `sqlite3 "data/votes.sqlite"`)
	assert.Contains(t, FormatStorageHint(""), "SQLite disabled")
}

func TestFormatHistory(t *testing.T) {
	assert.Equal(t, "No stored runs for JPM.\n", FormatHistory("JPM", nil))

	out := FormatHistory("JPM", []model.Run{*sampleRun()})
	assert.Contains(t, out, "Last 1 run(s) for JPM")
	assert.Contains(t, out, "#7  2025-03-14  close=231.46")
	assert.Contains(t, out, "BUY=1 HOLD=2 SELL=1")
	assert.Contains(t, out, "REDDIT_SENTIMENT")
}

func TestFormatFailure(t *testing.T) {
	assert.Equal(t, "Run for JPM failed: boom", FormatFailure("JPM", errors.New("boom")))
}

func TestTelegramNotifier_Send(t *testing.T) {
	var gotPath, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
	}))
	defer srv.Close()

	tn := NewTelegramNotifier("TOKEN", "42", "")
	tn.BaseURL = srv.URL
	require.True(t, tn.Enabled())

	require.NoError(t, tn.Send(context.Background(), "RSI 85 >= 80 & rising"))
	assert.Equal(t, "/botTOKEN/sendMessage", gotPath)
	assert.Equal(t, "42", gjson.Get(gotBody, "chat_id").String())
	assert.Equal(t, "<pre>RSI 85 &gt;= 80 &amp; rising</pre>", gjson.Get(gotBody, "text").String())
}

func TestTelegramNotifier_SendErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"ok":false}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	tn := NewTelegramNotifier("TOKEN", "42", "")
	tn.BaseURL = srv.URL

	err := tn.SendWithRetry(context.Background(), "hi", 0)
	assert.ErrorContains(t, err, "status 400")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, tn.SendWithRetry(ctx, "hi", 3))
}

func TestTelegramNotifier_Enabled(t *testing.T) {
	var nilNotifier *TelegramNotifier
	assert.False(t, nilNotifier.Enabled())
	assert.False(t, NewTelegramNotifier("", "42", "").Enabled())
	assert.False(t, NewTelegramNotifier("t", "", "").Enabled())
}

func TestAsPreTruncates(t *testing.T) {
	out := asPre(strings.Repeat("a", 10000))
	assert.LessOrEqual(t, len(out), maxMessageLen)
	assert.True(t, strings.HasSuffix(out, "...</pre>"))
}

func TestParseUpdates(t *testing.T) {
	ups, err := ParseUpdates([]byte(`{"ok":true,"result":[
		{"update_id":10,"message":{"chat":{"id":42},"text":" /run AAPL "}},
		{"update_id":11,"edited_message":{}}]}`))
	require.NoError(t, err)
	require.Len(t, ups, 2)
	assert.Equal(t, Update{ID: 10, ChatID: "42", Text: "/run AAPL"}, ups[0])
	assert.Equal(t, "", ups[1].Text)

	_, err = ParseUpdates([]byte(`{"ok":false,"description":"Unauthorized"}`))
	assert.ErrorContains(t, err, "Unauthorized")
	_, err = ParseUpdates([]byte(`nope`))
	assert.Error(t, err)
}

func TestStartPolling_AnswersConfiguredChatOnly(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu      sync.Mutex
		served  bool
		replies []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		switch {
		case strings.HasSuffix(r.URL.Path, "/getUpdates"):
			if served {
				w.Write([]byte(`{"ok":true,"result":[]}`))
				return
			}
			served = true
			w.Write([]byte(`{"ok":true,"result":[
				{"update_id":1,"message":{"chat":{"id":99},"text":"/run EVIL"}},
				{"update_id":2,"message":{"chat":{"id":42},"text":"/history"}}]}`))
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			b, _ := io.ReadAll(r.Body)
			replies = append(replies, gjson.GetBytes(b, "text").String())
			cancel()
		}
	}))
	defer srv.Close()

	tn := NewTelegramNotifier("TOKEN", "42", "")
	tn.BaseURL = srv.URL

	var commands []string
	done := make(chan struct{})
	go func() {
		tn.StartPolling(ctx, func(_ context.Context, cmd string) string {
			commands = append(commands, cmd)
			return "ok: " + cmd
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("polling did not stop")
	}

	assert.Equal(t, []string{"/history"}, commands)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"<pre>ok: /history</pre>"}, replies)
}
