package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"ChannelPilot/internal/domain"
	"ChannelPilot/internal/ports"
)

// FileSource supplies candidate channels from a JSON seed file of
// {name, link, category, priority} records.
type FileSource struct {
	path   string
	logger *slog.Logger
}

var _ ports.DiscoverySource = (*FileSource)(nil)

// NewFileSource points the source at a seed file path.
func NewFileSource(path string, logger *slog.Logger) *FileSource {
	return &FileSource{path: path, logger: logger}
}

type seedRecord struct {
	Name     string `json:"name"`
	Link     string `json:"link"`
	Category string `json:"category"`
	Priority string `json:"priority"`
}

// Discover parses the seed file. Records without a link are skipped.
func (s *FileSource) Discover(_ context.Context) ([]domain.Channel, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read seed file %s: %w", s.path, err)
	}

	var records []seedRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("parse seed file %s: %w", s.path, err)
	}

	channels := make([]domain.Channel, 0, len(records))
	for _, rec := range records {
		if rec.Link == "" {
			continue
		}
		channels = append(channels, domain.Channel{
			Name:     rec.Name,
			Link:     rec.Link,
			Category: rec.Category,
			Priority: domain.Priority(rec.Priority),
		})
	}

	if s.logger != nil {
		s.logger.Debug("seed file loaded", "path", s.path, "channels", len(channels))
	}
	return channels, nil
}
