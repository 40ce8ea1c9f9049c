package dto

import (
	"time"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/service"
)

// AttachmentRequest carries the client-side file name of an upload.
type AttachmentRequest struct {
	FileName string `json:"file_name"`
}

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Title        string             `json:"title"`
	Description  string             `json:"description"`
	Type         string             `json:"type"`
	Subtype      *string            `json:"subtype"`
	TechnicianID *string            `json:"technician_id"`
	Attachment   *AttachmentRequest `json:"attachment"`
}

// TicketFieldsRequest carries the editable fields of the detail form.
type TicketFieldsRequest struct {
	Status         string     `json:"status"`
	Priority       string     `json:"priority"`
	SupportLevel   *string    `json:"support_level"`
	TechnicianID   *string    `json:"technician_id"`
	CompletionDate *time.Time `json:"completion_date"`
}

// TicketActionRequest is a detail-page submission with its action
// discriminator.
type TicketActionRequest struct {
	Confirm     bool                `json:"confirm"`
	Action      string              `json:"action"`
	SendMessage bool                `json:"send_message"`
	MessageText string              `json:"message_text"`
	Conclusion  string              `json:"conclusion"`
	Fields      TicketFieldsRequest `json:"fields"`
}

// TicketSummary response.
type TicketSummary struct {
	ID                   string                `json:"id"`
	ExternalKey          string                `json:"external_key"`
	Title                string                `json:"title"`
	Type                 string                `json:"type"`
	Subtype              *string               `json:"subtype"`
	Status               domain.TicketStatus   `json:"status"`
	StatusLabel          string                `json:"status_label"`
	Priority             domain.TicketPriority `json:"priority"`
	PriorityLabel        string                `json:"priority_label"`
	SupportLevel         *domain.SupportLevel  `json:"support_level"`
	RequesterID          string                `json:"requester_id"`
	TechnicianID         *string               `json:"technician_id"`
	Active               bool                  `json:"active"`
	RecentlyUpdated      bool                  `json:"recently_updated"`
	UpdatedForRequester  bool                  `json:"updated_for_requester"`
	UpdatedForTechnician bool                  `json:"updated_for_technician"`
	CompletionDate       *time.Time            `json:"completion_date"`
	CreatedAt            time.Time             `json:"created_at"`
	UpdatedAt            time.Time             `json:"updated_at"`
}

// MessageResponse represents one thread entry.
type MessageResponse struct {
	ID             string    `json:"id"`
	AuthorID       string    `json:"author_id"`
	Text           string    `json:"text"`
	AttachmentPath *string   `json:"attachment_path"`
	CreatedAt      time.Time `json:"created_at"`
}

// HistoryResponse represents one audit line.
type HistoryResponse struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	AuthorID  string    `json:"author_id"`
	CreatedAt time.Time `json:"created_at"`
}

// TicketDetailResponse is the rendered detail-page model.
type TicketDetailResponse struct {
	Ticket         TicketSummary           `json:"ticket"`
	Description    string                  `json:"description"`
	AttachmentPath *string                 `json:"attachment_path"`
	Conclusion     *string                 `json:"conclusion"`
	Form           service.TicketFormState `json:"form"`
	Messages       []MessageResponse       `json:"messages"`
	History        []HistoryResponse       `json:"history"`
	IsClosed       bool                    `json:"is_closed"`
}

// DashboardResponse is one page of the ticket listing.
type DashboardResponse struct {
	Items          []TicketSummary `json:"items"`
	Page           int             `json:"page"`
	PageSize       int             `json:"page_size"`
	Total          int             `json:"total"`
	TotalPages     int             `json:"total_pages"`
	SelectedStatus string          `json:"selected_status"`
}
