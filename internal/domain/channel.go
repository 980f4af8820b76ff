package domain

import "time"

// Priority orders channels for assignment; high-priority channels are
// offered to accounts first.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Rank maps a priority to a sortable integer (lower sorts first).
// Unknown values rank below low so malformed seed data never jumps the queue.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	case PriorityLow:
		return 2
	default:
		return 3
	}
}

// Channel is a joinable community tracked by the catalog. Channels are never
// deleted, only marked inactive.
type Channel struct {
	ID               string
	Name             string
	Link             string
	Category         string
	Priority         Priority
	CredibilityScore float64
	TotalMembers     int
	IsActive         bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// AccountStatus enumerates administrative account states.
type AccountStatus string

const (
	AccountActive   AccountStatus = "active"
	AccountDisabled AccountStatus = "disabled"
)

// Account is an identity capable of holding channel assignments.
type Account struct {
	ID          string
	DisplayName string
	Status      AccountStatus
	CreatedAt   time.Time
}

// RawMessage is a single fetched message. Records missing ID or Text are
// rejected by the workflow rather than scraped for whatever fields exist.
type RawMessage struct {
	ID        string
	Text      string
	Sender    string
	Timestamp time.Time
}

// Valid reports whether the message carries the required fields.
func (m RawMessage) Valid() bool {
	return m.ID != "" && m.Text != ""
}

// ChannelVerdict summarizes one evaluation pass over a sampled message window.
type ChannelVerdict struct {
	ChannelID   string
	JobCount    int
	Total       int
	Density     float64
	IsHighValue bool
	Credibility float64
}
