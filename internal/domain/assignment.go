package domain

import "time"

// AssignmentStatus tracks the lifecycle of an account-channel binding.
// Released is terminal for the pair; a later re-bind creates a fresh row.
type AssignmentStatus string

const (
	AssignmentActive   AssignmentStatus = "active"
	AssignmentReleased AssignmentStatus = "released"
)

// Assignment is a durable binding of one account to one channel. At most one
// active assignment exists per channel at any time.
type Assignment struct {
	ID                   string
	AccountID            string
	ChannelID            string
	AssignedAt           time.Time
	Status               AssignmentStatus
	LastFetchAt          *time.Time
	MessagesFetchedTotal int
}

// HistoryAction enumerates the recorded assignment transitions.
type HistoryAction string

const (
	ActionBound      HistoryAction = "bound"
	ActionReleased   HistoryAction = "released"
	ActionReassigned HistoryAction = "reassigned"
)

// HistoryEntry is an append-only audit record of a bind or release.
type HistoryEntry struct {
	ID        string
	AccountID string
	ChannelID string
	Action    HistoryAction
	Timestamp time.Time
	Reason    string
}

// QuotaCounter counts channels acquired by an account within one quota epoch.
// Day is a UTC calendar date formatted 2006-01-02; rolling to a new date
// implicitly resets the count.
type QuotaCounter struct {
	AccountID     string
	Day           string
	AcquiredCount int
}

// SignalScore is the immutable scoring result for one message.
type SignalScore struct {
	MessageID    string
	IsSignal     bool
	Confidence   float64
	CategoryHits map[string]int
}
