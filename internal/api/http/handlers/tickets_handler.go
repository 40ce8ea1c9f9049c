package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/spec-kit/helpdesk/internal/api/dto"
	"github.com/spec-kit/helpdesk/internal/auth"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/service"
	apperrors "github.com/spec-kit/helpdesk/pkg/util"
)

const sessionCookie = "hd_session"

// statusFilterAll is the sentinel meaning "no status filter".
const statusFilterAll = "ALL"

// TicketsHandler manages the ticket workflow endpoints.
type TicketsHandler struct {
	service *service.TicketService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService) *TicketsHandler {
	return &TicketsHandler{service: ticketService}
}

// NewTicketForm GET /tickets/new clears the session submission guard so
// the next creation attempt is accepted.
func (h *TicketsHandler) NewTicketForm(c *fiber.Ctx) error {
	sessionID := h.sessionID(c)
	if err := h.service.OpenCreateForm(c.Context(), sessionID); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"ready": true}})
}

// CreateTicket POST /tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	actor, ok := auth.UserFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	input := service.TicketCreateInput{
		Title:        req.Title,
		Description:  req.Description,
		Type:         req.Type,
		Subtype:      req.Subtype,
		TechnicianID: req.TechnicianID,
	}
	if req.Attachment != nil {
		input.Attachment = &service.AttachmentInput{FileName: req.Attachment.FileName}
	}

	ticket, notices, err := h.service.CreateTicket(c.Context(), h.sessionID(c), actor, input)
	if err != nil {
		if errors.Is(err, service.ErrDuplicateSubmission) {
			return c.Status(http.StatusSeeOther).JSON(fiber.Map{"redirect": "/tickets"})
		}
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"data":    ticketSummary(ticket),
		"notices": notices,
	})
}

// ListTickets GET /tickets serves the dashboard page.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	if _, ok := auth.UserFromContext(c); !ok {
		return apperrors.NewUnauthorized("user required")
	}

	statusQuery := strings.ToUpper(strings.TrimSpace(c.Query("status", statusFilterAll)))
	var filter *domain.TicketStatus
	if statusQuery != "" && statusQuery != statusFilterAll {
		status := domain.TicketStatus(statusQuery)
		if !status.Valid() {
			return apperrors.NewValidationError("unknown status filter", map[string]any{"status": statusQuery})
		}
		filter = &status
	}

	page := parseInt(c.Query("page"), 1)
	result, err := h.service.ListDashboard(c.Context(), filter, page)
	if err != nil {
		return err
	}

	items := make([]dto.TicketSummary, 0, len(result.Tickets))
	for i := range result.Tickets {
		items = append(items, ticketSummary(&result.Tickets[i]))
	}
	return c.JSON(fiber.Map{"data": dto.DashboardResponse{
		Items:          items,
		Page:           result.Page,
		PageSize:       result.PageSize,
		Total:          result.Total,
		TotalPages:     result.TotalPages,
		SelectedStatus: statusQuery,
	}})
}

// GetTicket GET /tickets/:id renders the detail view and acknowledges the
// viewer's pending notification.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	actor, ok := auth.UserFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	view, err := h.service.ViewTicket(c.Context(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketDetail(view)})
}

// DispatchAction POST /tickets/:id/actions routes a detail-page submission.
func (h *TicketsHandler) DispatchAction(c *fiber.Ctx) error {
	actor, ok := auth.UserFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	var req dto.TicketActionRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	input := service.ActionInput{
		Confirm:     req.Confirm,
		Action:      service.TicketAction(req.Action),
		SendMessage: req.SendMessage,
		MessageText: req.MessageText,
		Conclusion:  req.Conclusion,
		Fields: service.TicketFieldsInput{
			Status:         req.Fields.Status,
			Priority:       req.Fields.Priority,
			SupportLevel:   req.Fields.SupportLevel,
			TechnicianID:   req.Fields.TechnicianID,
			CompletionDate: req.Fields.CompletionDate,
		},
	}
	result, err := h.service.Dispatch(c.Context(), actor, c.Params("id"), input)
	if err != nil {
		return err
	}

	response := fiber.Map{
		"data":    ticketSummary(result.Ticket),
		"notices": result.Notices,
	}
	if len(result.FieldErrors) > 0 {
		response["field_errors"] = result.FieldErrors
	}
	// Close and reopen land back on the dashboard, like the detail form.
	if closedOrReopened(input, result) {
		response["redirect"] = "/tickets"
	}
	return c.JSON(response)
}

func closedOrReopened(input service.ActionInput, result *service.DispatchResult) bool {
	if input.Confirm || len(result.Notices) == 0 {
		return false
	}
	return input.Action == service.ActionClose || input.Action == service.ActionReopen
}

// sessionID reads the session cookie, minting one when absent.
func (h *TicketsHandler) sessionID(c *fiber.Ctx) string {
	if id := c.Cookies(sessionCookie); id != "" {
		return id
	}
	id := uuid.NewString()
	c.Cookie(&fiber.Cookie{Name: sessionCookie, Value: id, HTTPOnly: true})
	return id
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func ticketSummary(ticket *domain.Ticket) dto.TicketSummary {
	return dto.TicketSummary{
		ID:                   ticket.ID,
		ExternalKey:          ticket.ExternalKey,
		Title:                ticket.Title,
		Type:                 ticket.Type,
		Subtype:              ticket.Subtype,
		Status:               ticket.Status,
		StatusLabel:          ticket.Status.Label(),
		Priority:             ticket.Priority,
		PriorityLabel:        ticket.Priority.Label(),
		SupportLevel:         ticket.SupportLevel,
		RequesterID:          ticket.RequesterID,
		TechnicianID:         ticket.TechnicianID,
		Active:               ticket.Active,
		RecentlyUpdated:      ticket.RecentlyUpdated,
		UpdatedForRequester:  ticket.UpdatedForRequester,
		UpdatedForTechnician: ticket.UpdatedForTechnician,
		CompletionDate:       ticket.CompletionDate,
		CreatedAt:            ticket.CreatedAt,
		UpdatedAt:            ticket.UpdatedAt,
	}
}

func ticketDetail(view *service.TicketView) dto.TicketDetailResponse {
	messages := make([]dto.MessageResponse, 0, len(view.Messages))
	for _, msg := range view.Messages {
		messages = append(messages, dto.MessageResponse{
			ID:             msg.ID,
			AuthorID:       msg.AuthorID,
			Text:           msg.Text,
			AttachmentPath: msg.AttachmentPath,
			CreatedAt:      msg.CreatedAt,
		})
	}
	history := make([]dto.HistoryResponse, 0, len(view.History))
	for _, entry := range view.History {
		history = append(history, dto.HistoryResponse{
			ID:        entry.ID,
			Message:   entry.Message,
			AuthorID:  entry.AuthorID,
			CreatedAt: entry.CreatedAt,
		})
	}
	return dto.TicketDetailResponse{
		Ticket:         ticketSummary(view.Ticket),
		Description:    view.Ticket.Description,
		AttachmentPath: view.Ticket.AttachmentPath,
		Conclusion:     view.Ticket.Conclusion,
		Form:           view.Form,
		Messages:       messages,
		History:        history,
		IsClosed:       view.IsClosed,
	}
}
