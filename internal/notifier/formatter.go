package notifier

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"PillarVote/internal/model"
)

const (
	rule         = "======================================================================"
	maxReasonLen = 120
)

// FormatRunReport renders a run as a plain-text report, votes grouped by pillar.
func FormatRunReport(run *model.Run) string {
	var b strings.Builder

	b.WriteString(rule + "\n")
	b.WriteString(fmt.Sprintf("RUN %d  [%s @ %s]  close=%.2f\n", run.ID, run.Ticker, run.AsOf.Format(time.DateOnly), run.Close))
	b.WriteString(rule + "\n")

	order, groups := run.ByPillar()
	for _, p := range order {
		b.WriteString(fmt.Sprintf("\n--- %s ---\n", strings.ToUpper(string(p))))
		for _, v := range groups[p] {
			b.WriteString(FormatVote(v) + "\n")
		}
	}

	buy, hold, sell := run.Tally()
	b.WriteString(fmt.Sprintf("\nTally: BUY=%d HOLD=%d SELL=%d\n", buy, hold, sell))
	return b.String()
}

// FormatVote renders one vote line.
func FormatVote(v model.Vote) string {
	return fmt.Sprintf("%18s: %-5s  vote=%+d  conf=%.2f  :: %s",
		v.Tool, v.Signal, v.Vote, v.Confidence, clip(v.Reason, maxReasonLen))
}

// FormatStorageHint tells the user where the run was stored and how to inspect it.
func FormatStorageHint(dbPath string) string {
	var b strings.Builder
	b.WriteString("\n" + rule + "\nSTORAGE\n" + rule + "\n")
	if dbPath == "" {
		b.WriteString("SQLite disabled, nothing was stored.\n")
		return b.String()
	}
	b.WriteString(fmt.Sprintf("Saved to SQLite: %s\n", dbPath))
	b.WriteString("Use any SQLite browser, or try:\n")
	b.WriteString(fmt.Sprintf("  sqlite3 %q \"SELECT pillar, tool, vote, signal, substr(payload,1,80) FROM votes ORDER BY id DESC LIMIT 10;\"\n", dbPath))
	b.WriteString(fmt.Sprintf("  sqlite3 %q \"SELECT COUNT(*) FROM votes;\"\n", dbPath))
	return b.String()
}

// FormatHistory lists stored runs, newest first, one block per run.
func FormatHistory(ticker string, runs []model.Run) string {
	if len(runs) == 0 {
		return fmt.Sprintf("No stored runs for %s.\n", ticker)
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Last %d run(s) for %s\n", len(runs), ticker))
	for _, r := range runs {
		buy, hold, sell := r.Tally()
		b.WriteString(fmt.Sprintf("\n#%d  %s  close=%.2f  created=%s  BUY=%d HOLD=%d SELL=%d\n",
			r.ID, r.AsOf.Format(time.DateOnly), r.Close, r.CreatedAt.Local().Format("2006-01-02 15:04"), buy, hold, sell))
		for _, v := range r.Votes {
			b.WriteString(FormatVote(v) + "\n")
		}
	}
	return b.String()
}

// FormatFailure is the message pushed when a pass cannot complete.
func FormatFailure(ticker string, err error) string {
	return fmt.Sprintf("Run for %s failed: %v", ticker, err)
}

func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
