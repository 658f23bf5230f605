package notifier

import (
	"context"
	"fmt"
	"strings"
	"time"

	"tradebot/internal/pkg/text"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
)

const (
	defaultTelegramBaseURL = "https://api.telegram.org"
	telegramRetries        = 2
)

// Telegram posts messages to one chat through the Bot API.
type Telegram struct {
	BotToken string
	ChatID   string
	http     *resty.Client
}

// NewTelegram builds a notifier. An empty baseURL targets the public API.
func NewTelegram(botToken, chatID, baseURL string) *Telegram {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultTelegramBaseURL
	}
	hc := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(15 * time.Second).
		SetRetryCount(telegramRetries).
		SetRetryWaitTime(time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= 500 || r.StatusCode() == 429
		})
	return &Telegram{BotToken: botToken, ChatID: chatID, http: hc}
}

// SendText sends text in Markdown mode, retrying transport errors, 429s and
// 5xx responses.
func (t *Telegram) SendText(ctx context.Context, msg string) error {
	if t.BotToken == "" || t.ChatID == "" {
		return fmt.Errorf("telegram notifier is not configured")
	}
	resp, err := t.http.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"chat_id":    t.ChatID,
			"text":       msg,
			"parse_mode": "Markdown",
		}).
		Post("/bot" + t.BotToken + "/sendMessage")
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("telegram status=%d body=%s", resp.StatusCode(), text.Truncate(resp.String(), 200))
	}
	if body := gjson.ParseBytes(resp.Body()); body.Get("ok").Exists() && !body.Get("ok").Bool() {
		return fmt.Errorf("telegram rejected message: %s", body.Get("description").String())
	}
	return nil
}
