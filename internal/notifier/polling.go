package notifier

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
)

// CommandHandler is called when a command is received and returns the reply text.
type CommandHandler func(ctx context.Context, command string) string

// Update is one incoming chat message.
type Update struct {
	ID     int64
	ChatID string
	Text   string
}

// ParseUpdates decodes a getUpdates response body.
func ParseUpdates(body []byte) ([]Update, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("invalid json")
	}
	if !gjson.GetBytes(body, "ok").Bool() {
		return nil, fmt.Errorf("telegram: %s", gjson.GetBytes(body, "description").String())
	}
	var out []Update
	gjson.GetBytes(body, "result").ForEach(func(_, u gjson.Result) bool {
		out = append(out, Update{
			ID:     u.Get("update_id").Int(),
			ChatID: u.Get("message.chat.id").String(),
			Text:   strings.TrimSpace(u.Get("message.text").String()),
		})
		return true
	})
	return out, nil
}

// StartPolling long-polls for commands and answers them. Messages from chats other than
// the configured one are ignored. Blocks until ctx is cancelled.
func (t *TelegramNotifier) StartPolling(ctx context.Context, handler CommandHandler) {
	var offset int64
	client := &http.Client{Timeout: 35 * time.Second, Transport: t.Client.Transport}

	for {
		if ctx.Err() != nil {
			log.Info().Msg("telegram polling stopped")
			return
		}

		updates, err := t.poll(ctx, client, offset)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			log.Warn().Err(err).Msg("telegram polling failed")
			select {
			case <-ctx.Done():
			case <-time.After(5 * time.Second):
			}
			continue
		}

		for _, u := range updates {
			offset = u.ID + 1
			if u.Text == "" || u.ChatID != t.ChatID {
				continue
			}
			log.Info().Str("command", u.Text).Msg("received command")
			if reply := handler(ctx, u.Text); reply != "" {
				if err := t.Send(ctx, reply); err != nil {
					log.Error().Err(err).Msg("send reply failed")
				}
			}
		}
	}
}

func (t *TelegramNotifier) poll(ctx context.Context, client *http.Client, offset int64) ([]Update, error) {
	apiURL := fmt.Sprintf("%s?offset=%d&timeout=30", t.endpoint("getUpdates"), offset)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read polling response: %w", err)
	}
	return ParseUpdates(body)
}
