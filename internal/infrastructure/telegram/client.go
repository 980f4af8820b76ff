package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"ChannelPilot/internal/domain"
	"ChannelPilot/internal/ports"
)

const previewHost = "https://t.me"

// PreviewClient implements ports.ChannelClient over the public t.me/s/
// channel preview pages. It never mutates application state; any error means
// the remote operation did not happen.
type PreviewClient struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

var _ ports.ChannelClient = (*PreviewClient)(nil)

// NewPreviewClient wires an HTTP client; baseURL defaults to t.me.
func NewPreviewClient(baseURL string, client *http.Client, logger *slog.Logger) *PreviewClient {
	if baseURL == "" {
		baseURL = previewHost
	}
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &PreviewClient{baseURL: baseURL, client: client, logger: logger}
}

// Join verifies the channel preview is reachable and returns a handle for
// subsequent fetches.
func (c *PreviewClient) Join(ctx context.Context, channel domain.Channel) (ports.Handle, error) {
	previewURL, err := c.previewURL(channel.Link)
	if err != nil {
		return ports.Handle{}, fmt.Errorf("join %s: %w", channel.Link, err)
	}

	doc, err := c.fetchDocument(ctx, previewURL)
	if err != nil {
		return ports.Handle{}, fmt.Errorf("join %s: %w", channel.Link, err)
	}
	if doc.Find(".tgme_channel_info, .tgme_widget_message").Length() == 0 {
		return ports.Handle{}, fmt.Errorf("join %s: no public preview", channel.Link)
	}

	c.debug("channel joined", "channel", channel.Name, "url", previewURL)
	return ports.Handle{ChannelID: channel.ID, Ref: previewURL}, nil
}

// Leave releases the handle. Preview pages hold no remote session, so there
// is nothing to tear down.
func (c *PreviewClient) Leave(_ context.Context, handle ports.Handle) error {
	c.debug("channel left", "channel", handle.ChannelID)
	return nil
}

// FetchMessages pulls the most recent messages from the preview page, newest
// first, up to limit.
func (c *PreviewClient) FetchMessages(ctx context.Context, handle ports.Handle, limit int) ([]domain.RawMessage, error) {
	if limit <= 0 {
		return nil, nil
	}

	doc, err := c.fetchDocument(ctx, handle.Ref)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", handle.ChannelID, err)
	}

	var messages []domain.RawMessage
	doc.Find(".tgme_widget_message").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		msg, ok := parseMessage(sel)
		if ok {
			messages = append(messages, msg)
		}
		return len(messages) < limit
	})

	// Preview pages render oldest first; callers expect newest first.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	c.debug("messages fetched", "channel", handle.ChannelID, "count", len(messages))
	return messages, nil
}

func parseMessage(sel *goquery.Selection) (domain.RawMessage, bool) {
	id, ok := sel.Attr("data-post")
	if !ok || id == "" {
		return domain.RawMessage{}, false
	}

	text := strings.TrimSpace(sel.Find(".tgme_widget_message_text").First().Text())
	if text == "" {
		return domain.RawMessage{}, false
	}

	sender := strings.TrimSpace(sel.Find(".tgme_widget_message_owner_name").First().Text())

	var ts time.Time
	if raw, found := sel.Find(".tgme_widget_message_date time").First().Attr("datetime"); found {
		if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
			ts = parsed.UTC()
		}
	}

	return domain.RawMessage{ID: id, Text: text, Sender: sender, Timestamp: ts}, true
}

func (c *PreviewClient) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "ChannelPilot/1.0")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("preview returned %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	return doc, nil
}

// previewURL maps a channel link like https://t.me/xyz to its public preview
// page on the configured base.
func (c *PreviewClient) previewURL(link string) (string, error) {
	parsed, err := url.Parse(link)
	if err != nil {
		return "", fmt.Errorf("parse link: %w", err)
	}
	name := strings.Trim(parsed.Path, "/")
	if name == "" {
		return "", fmt.Errorf("link %s has no channel name", link)
	}
	return c.baseURL + "/s/" + name, nil
}

func (c *PreviewClient) debug(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Debug(msg, args...)
	}
}
