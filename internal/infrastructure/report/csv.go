package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"ChannelPilot/internal/domain"
)

// WriteHighValueCSV exports high-value channels for the reporting layer.
// Columns mirror the catalog's channel metadata.
func WriteHighValueCSV(w io.Writer, channels []domain.Channel) error {
	cw := csv.NewWriter(w)

	header := []string{"id", "name", "link", "category", "priority", "credibility_score", "total_members"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for _, ch := range channels {
		row := []string{
			ch.ID,
			ch.Name,
			ch.Link,
			ch.Category,
			string(ch.Priority),
			strconv.FormatFloat(ch.CredibilityScore, 'f', 2, 64),
			strconv.Itoa(ch.TotalMembers),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row %s: %w", ch.ID, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}
