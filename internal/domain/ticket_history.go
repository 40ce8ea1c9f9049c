package domain

import "time"

// HistoryEntry is an immutable audit trail line for a ticket. Entries are
// created only by the workflow service as a side effect of state
// transitions and are never mutated or deleted.
type HistoryEntry struct {
	ID        string
	TicketID  string
	Message   string
	AuthorID  string
	CreatedAt time.Time
}
