package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen        TicketStatus = "OPEN"
	TicketStatusInAnalysis  TicketStatus = "IN_ANALYSIS"
	TicketStatusInExecution TicketStatus = "IN_EXECUTION"
	TicketStatusCompleted   TicketStatus = "COMPLETED"
	TicketStatusClosed      TicketStatus = "CLOSED"
	TicketStatusReopened    TicketStatus = "REOPENED"
)

// TicketPriority enumerates triage urgency.
type TicketPriority string

const (
	TicketPriorityNew      TicketPriority = "NEW"
	TicketPriorityVeryLow  TicketPriority = "VERY_LOW"
	TicketPriorityLow      TicketPriority = "LOW"
	TicketPriorityMedium   TicketPriority = "MEDIUM"
	TicketPriorityHigh     TicketPriority = "HIGH"
	TicketPriorityVeryHigh TicketPriority = "VERY_HIGH"
)

// SupportLevel enumerates the escalation tier a ticket is handled at.
type SupportLevel string

const (
	SupportLevelN1 SupportLevel = "N1"
	SupportLevelN2 SupportLevel = "N2"
	SupportLevelN3 SupportLevel = "N3"
)

// Display labels shown to users and written into history entries. Codes
// stay stable while labels carry the Portuguese the operators read.
var statusLabels = map[TicketStatus]string{
	TicketStatusOpen:        "Aberto",
	TicketStatusInAnalysis:  "Em Análise",
	TicketStatusInExecution: "Em Execução",
	TicketStatusCompleted:   "Concluído",
	TicketStatusClosed:      "Fechado",
	TicketStatusReopened:    "Reaberto",
}

var priorityLabels = map[TicketPriority]string{
	TicketPriorityNew:      "Novo",
	TicketPriorityVeryLow:  "Muito Baixa",
	TicketPriorityLow:      "Baixa",
	TicketPriorityMedium:   "Média",
	TicketPriorityHigh:     "Alta",
	TicketPriorityVeryHigh: "Muito Alta",
}

// Label returns the human-readable name for the status.
func (s TicketStatus) Label() string {
	return statusLabels[s]
}

// Valid reports whether the status is a known enum value.
func (s TicketStatus) Valid() bool {
	_, ok := statusLabels[s]
	return ok
}

// Label returns the human-readable name for the priority.
func (p TicketPriority) Label() string {
	return priorityLabels[p]
}

// Valid reports whether the priority is a known enum value.
func (p TicketPriority) Valid() bool {
	_, ok := priorityLabels[p]
	return ok
}

// Label returns the display name for the support level (the code itself).
func (l SupportLevel) Label() string {
	return string(l)
}

// Valid reports whether the support level is a known enum value.
func (l SupportLevel) Valid() bool {
	switch l {
	case SupportLevelN1, SupportLevelN2, SupportLevelN3:
		return true
	}
	return false
}

// TicketStatuses lists all statuses in display order.
func TicketStatuses() []TicketStatus {
	return []TicketStatus{
		TicketStatusOpen,
		TicketStatusInAnalysis,
		TicketStatusInExecution,
		TicketStatusCompleted,
		TicketStatusClosed,
		TicketStatusReopened,
	}
}

// TicketPriorities lists all priorities in display order.
func TicketPriorities() []TicketPriority {
	return []TicketPriority{
		TicketPriorityNew,
		TicketPriorityVeryLow,
		TicketPriorityLow,
		TicketPriorityMedium,
		TicketPriorityHigh,
		TicketPriorityVeryHigh,
	}
}

// SupportLevels lists all support levels in display order.
func SupportLevels() []SupportLevel {
	return []SupportLevel{SupportLevelN1, SupportLevelN2, SupportLevelN3}
}

// Ticket is the aggregate for support requests. It is mutated exclusively
// through the workflow service; rows are never physically deleted.
type Ticket struct {
	ID                   string
	ExternalKey          string
	RequesterID          string
	TechnicianID         *string
	Title                string
	Description          string
	Type                 string
	Subtype              *string
	AttachmentPath       *string
	Status               TicketStatus
	Priority             TicketPriority
	SupportLevel         *SupportLevel
	Active               bool
	RecentlyUpdated      bool
	UpdatedForRequester  bool
	UpdatedForTechnician bool
	Conclusion           *string
	CompletionDate       *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// AssignedTo reports whether the given user is the assigned technician.
func (t *Ticket) AssignedTo(userID string) bool {
	return t.TechnicianID != nil && *t.TechnicianID == userID
}
