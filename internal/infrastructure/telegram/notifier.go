package telegram

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ChannelPilot/internal/ports"
)

const botAPIHost = "https://api.telegram.org"

// Notifier sends harvest digests to a Telegram chat via bot API. Digest
// presentation (header, Markdown framing) lives here; callers pass bare
// per-account summary lines.
type Notifier struct {
	apiBase  string
	botToken string
	chatID   string
	client   *http.Client
	now      func() time.Time
}

var _ ports.Notifier = (*Notifier)(nil)

// NewNotifier registers bot token and chat identifier.
func NewNotifier(botToken, chatID string) *Notifier {
	return &Notifier{
		apiBase:  botAPIHost,
		botToken: botToken,
		chatID:   chatID,
		client:   &http.Client{Timeout: 5 * time.Second},
		now:      time.Now,
	}
}

// PublishDigest frames the digest under a dated header and posts it as a
// Markdown message.
func (n *Notifier) PublishDigest(ctx context.Context, digest string) error {
	if n.botToken == "" || n.chatID == "" || n.client == nil {
		return fmt.Errorf("telegram notifier misconfigured")
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", n.apiBase, n.botToken)
	form := url.Values{}
	form.Set("chat_id", n.chatID)
	form.Set("text", n.frame(digest))
	form.Set("parse_mode", "Markdown")
	form.Set("disable_web_page_preview", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram error: %s", resp.Status)
	}

	return nil
}

func (n *Notifier) frame(digest string) string {
	day := n.now().UTC().Format("2006-01-02")
	return fmt.Sprintf("*Harvest digest %s*\n\n%s", day, strings.TrimSpace(digest))
}
