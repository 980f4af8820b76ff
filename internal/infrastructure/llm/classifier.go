package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"ChannelPilot/internal/config"
	"ChannelPilot/internal/domain"
	"ChannelPilot/internal/ports"
)

// Classifier scores messages through an OpenAI-compatible chat API. It is an
// optional strategy behind the same interface as the keyword model and is
// never required for correct operation.
type Classifier struct {
	endpoint     string
	model        string
	apiKey       string
	systemPrompt string
	httpClient   *http.Client
}

var _ ports.Classifier = (*Classifier)(nil)

// NewClassifier builds a classifier from configuration.
func NewClassifier(cfg config.ClassifierConfig) *Classifier {
	return &Classifier{
		endpoint:     cfg.Endpoint,
		model:        cfg.Model,
		apiKey:       cfg.APIKey,
		systemPrompt: cfg.SystemPrompt,
		httpClient: &http.Client{
			Timeout: 20 * time.Second,
		},
	}
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type modelVerdict struct {
	IsJob      bool    `json:"is_job"`
	Confidence float64 `json:"confidence"`
}

// Classify asks the model for a JSON verdict on the message text.
func (c *Classifier) Classify(ctx context.Context, msg domain.RawMessage) (domain.SignalScore, error) {
	if c == nil {
		return domain.SignalScore{}, fmt.Errorf("llm classifier is nil")
	}
	if c.apiKey == "" || c.endpoint == "" || c.model == "" {
		return domain.SignalScore{}, fmt.Errorf("llm classifier misconfigured")
	}

	body, err := json.Marshal(map[string]any{
		"model": c.model,
		"messages": []map[string]string{
			{"role": "system", "content": safePrompt(c.systemPrompt)},
			{"role": "user", "content": msg.Text},
		},
	})
	if err != nil {
		return domain.SignalScore{}, fmt.Errorf("marshal classify payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return domain.SignalScore{}, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.SignalScore{}, fmt.Errorf("classify message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return domain.SignalScore{}, fmt.Errorf("classifier error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	var completion completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return domain.SignalScore{}, fmt.Errorf("decode completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return domain.SignalScore{}, fmt.Errorf("classifier returned no choices")
	}

	var verdict modelVerdict
	content := strings.TrimSpace(completion.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(content), &verdict); err != nil {
		return domain.SignalScore{}, fmt.Errorf("parse verdict %q: %w", content, err)
	}

	if verdict.Confidence < 0 {
		verdict.Confidence = 0
	}
	if verdict.Confidence > 1 {
		verdict.Confidence = 1
	}

	return domain.SignalScore{
		MessageID:  msg.ID,
		IsSignal:   verdict.IsJob,
		Confidence: verdict.Confidence,
	}, nil
}

func safePrompt(prompt string) string {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return `You classify chat messages as job postings. Reply with JSON: {"is_job": bool, "confidence": 0..1}.`
	}
	return prompt
}
