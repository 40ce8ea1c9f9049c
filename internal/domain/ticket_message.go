package domain

import "time"

// Message is one entry of the conversation thread on a ticket. The thread
// is append-only.
type Message struct {
	ID             string
	TicketID       string
	AuthorID       string
	Text           string
	AttachmentPath *string
	CreatedAt      time.Time
}
