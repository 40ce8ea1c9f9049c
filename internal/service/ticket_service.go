package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/events"
	"github.com/spec-kit/helpdesk/internal/repository"
	"github.com/spec-kit/helpdesk/internal/session"
	"github.com/spec-kit/helpdesk/internal/storage"
	apperrors "github.com/spec-kit/helpdesk/pkg/util"
)

// DashboardPageSize is the fixed page size of the ticket listing.
const DashboardPageSize = 6

// recentWindow is how long after its last update a ticket counts as
// recently updated on the dashboard.
const recentWindow = 7 * 24 * time.Hour

const historyTimeLayout = "02/01/2006 15:04:05"

// ErrDuplicateSubmission is returned when the session already submitted
// the creation form; the caller should redirect without creating anything.
var ErrDuplicateSubmission = errors.New("ticket already submitted in this session")

// NoticeLevel distinguishes success confirmations from warnings.
type NoticeLevel string

const (
	NoticeSuccess NoticeLevel = "success"
	NoticeWarning NoticeLevel = "warning"
)

// Notice is a user-visible notification produced by a workflow operation.
type Notice struct {
	Level   NoticeLevel `json:"level"`
	Message string      `json:"message"`
}

// TicketService implements the ticket workflow: creation, dashboard
// listing, read acknowledgment, the status state machine, close/reopen and
// the message thread.
type TicketService struct {
	tickets    repository.TicketRepository
	messages   repository.MessageRepository
	history    repository.HistoryRepository
	users      repository.UserRepository
	sessions   session.Store
	dispatcher events.Dispatcher
	now        func() time.Time
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo  repository.TicketRepository
	MessageRepo repository.MessageRepository
	HistoryRepo repository.HistoryRepository
	UserRepo    repository.UserRepository
	Sessions    session.Store
	Dispatcher  events.Dispatcher
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	return &TicketService{
		tickets:    deps.TicketRepo,
		messages:   deps.MessageRepo,
		history:    deps.HistoryRepo,
		users:      deps.UserRepo,
		sessions:   deps.Sessions,
		dispatcher: deps.Dispatcher,
		now:        time.Now,
	}
}

// AttachmentInput carries the client-side name of an uploaded file.
type AttachmentInput struct {
	FileName string
}

// TicketCreateInput describes the ticket creation payload.
type TicketCreateInput struct {
	Title        string
	Description  string
	Type         string
	Subtype      *string
	TechnicianID *string
	Attachment   *AttachmentInput
}

// OpenCreateForm resets the per-session submission guard. Called whenever
// the creation form is served so the next submission is accepted.
func (s *TicketService) OpenCreateForm(ctx context.Context, sessionID string) error {
	return s.sessions.ClearSubmitted(ctx, sessionID)
}

// CreateTicket files a new ticket for the requester. A repeated submission
// from the same session returns ErrDuplicateSubmission without creating a
// second ticket.
func (s *TicketService) CreateTicket(ctx context.Context, sessionID string, requester *domain.User, input TicketCreateInput) (*domain.Ticket, []Notice, error) {
	submitted, err := s.sessions.AlreadySubmitted(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	if submitted {
		return nil, nil, ErrDuplicateSubmission
	}

	if strings.TrimSpace(input.Description) == "" {
		return nil, nil, apperrors.NewValidationError("description required", map[string]any{
			"description": "O campo descrição é obrigatório.",
		})
	}

	ticket := &domain.Ticket{
		ExternalKey:  generateTicketKey(),
		RequesterID:  requester.ID,
		TechnicianID: normalizeID(input.TechnicianID),
		Title:        strings.TrimSpace(input.Title),
		Description:  strings.TrimSpace(input.Description),
		Type:         strings.TrimSpace(input.Type),
		Subtype:      input.Subtype,
		Status:       domain.TicketStatusOpen,
		Priority:     domain.TicketPriorityNew,
		Active:       true,
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, nil, err
	}

	// The stored name needs the ticket id, so the path lands in a second
	// save, mirroring the two-step create of the original flow.
	if input.Attachment != nil && input.Attachment.FileName != "" {
		name := storage.AttachmentFileName(ticket.ID, requester.Name, input.Attachment.FileName, s.now())
		path := storage.AttachmentPath(name)
		ticket.AttachmentPath = &path
		ticket.UpdatedAt = s.now()
		if err := s.tickets.Update(ctx, ticket); err != nil {
			return nil, nil, err
		}
	}

	if err := s.sessions.MarkSubmitted(ctx, sessionID); err != nil {
		return nil, nil, err
	}

	s.publishEvent(ctx, requester, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		Payload: events.TicketCreatedPayload{
			ExternalKey: ticket.ExternalKey,
			Priority:    ticket.Priority,
			Type:        ticket.Type,
			Title:       ticket.Title,
		},
	})
	return ticket, []Notice{{NoticeSuccess, "Ticket criado com sucesso!"}}, nil
}

// DashboardPage is one page of the ticket listing.
type DashboardPage struct {
	Tickets    []domain.Ticket
	Page       int
	PageSize   int
	Total      int
	TotalPages int
}

// ListDashboard returns one page of tickets, newest first, optionally
// filtered by status. As a side effect the recently-updated flag of every
// returned ticket is recomputed and persisted; the recomputation is
// idempotent.
func (s *TicketService) ListDashboard(ctx context.Context, status *domain.TicketStatus, page int) (*DashboardPage, error) {
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * DashboardPageSize

	tickets, err := s.tickets.ListByStatus(ctx, status, DashboardPageSize, offset)
	if err != nil {
		return nil, err
	}
	total, err := s.tickets.CountByStatus(ctx, status)
	if err != nil {
		return nil, err
	}

	cutoff := s.now().Add(-recentWindow)
	for i := range tickets {
		recent := !tickets[i].UpdatedAt.Before(cutoff)
		tickets[i].RecentlyUpdated = recent
		if err := s.tickets.SetRecentlyUpdated(ctx, tickets[i].ID, recent); err != nil {
			return nil, err
		}
	}

	totalPages := (total + DashboardPageSize - 1) / DashboardPageSize
	if totalPages < 1 {
		totalPages = 1
	}
	return &DashboardPage{
		Tickets:    tickets,
		Page:       page,
		PageSize:   DashboardPageSize,
		Total:      total,
		TotalPages: totalPages,
	}, nil
}

// SelectOption is one choice of an editable-field select.
type SelectOption struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// TicketFormState mirrors the editable fields of the detail form, plus the
// option lists the presentation layer renders.
type TicketFormState struct {
	Status            domain.TicketStatus   `json:"status"`
	Priority          domain.TicketPriority `json:"priority"`
	SupportLevel      *domain.SupportLevel  `json:"support_level"`
	TechnicianID      *string               `json:"technician_id"`
	CompletionDate    *time.Time            `json:"completion_date"`
	StatusOptions     []SelectOption        `json:"status_options"`
	PriorityOptions   []SelectOption        `json:"priority_options"`
	LevelOptions      []SelectOption        `json:"level_options"`
	TechnicianOptions []SelectOption        `json:"technician_options"`
}

// TicketView is the rendered detail-page model.
type TicketView struct {
	Ticket   *domain.Ticket
	Form     TicketFormState
	Messages []domain.Message
	History  []domain.HistoryEntry
	IsClosed bool
}

// ViewTicket loads the detail view and acknowledges the viewer's pending
// notification: only the viewer's own flag is cleared.
func (s *TicketService) ViewTicket(ctx context.Context, actor *domain.User, ticketID string) (*TicketView, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	if ticket.AssignedTo(actor.ID) && ticket.UpdatedForTechnician {
		ticket.UpdatedForTechnician = false
		if err := s.tickets.SetNotificationFlags(ctx, ticket.ID, ticket.UpdatedForRequester, false); err != nil {
			return nil, err
		}
	} else if ticket.RequesterID == actor.ID && ticket.UpdatedForRequester {
		ticket.UpdatedForRequester = false
		if err := s.tickets.SetNotificationFlags(ctx, ticket.ID, false, ticket.UpdatedForTechnician); err != nil {
			return nil, err
		}
	}

	messages, err := s.messages.ListByTicket(ctx, ticket.ID)
	if err != nil {
		return nil, err
	}
	history, err := s.history.ListByTicket(ctx, ticket.ID)
	if err != nil {
		return nil, err
	}
	form, err := s.formState(ctx, ticket)
	if err != nil {
		return nil, err
	}

	return &TicketView{
		Ticket:   ticket,
		Form:     form,
		Messages: messages,
		History:  history,
		IsClosed: ticket.Status == domain.TicketStatusClosed,
	}, nil
}

// TicketAction is the explicit action discriminator of a detail-page
// submission.
type TicketAction string

const (
	ActionClose  TicketAction = "close"
	ActionReopen TicketAction = "reopen"
)

// TicketFieldsInput carries the editable-field values of a confirmed
// status update.
type TicketFieldsInput struct {
	Status         string
	Priority       string
	SupportLevel   *string
	TechnicianID   *string
	CompletionDate *time.Time
}

// ActionInput is a detail-page submission. Confirm marks a status-update
// submission; SendMessage marks a message submission.
type ActionInput struct {
	Confirm     bool
	Action      TicketAction
	SendMessage bool
	MessageText string
	Conclusion  string
	Fields      TicketFieldsInput
}

// DispatchResult reports what a dispatched action did. FieldErrors is
// non-empty only for a rejected status update.
type DispatchResult struct {
	Ticket      *domain.Ticket
	Notices     []Notice
	FieldErrors map[string]string
}

// Dispatch routes a detail-page submission: a confirmed status update
// first (subject to the closed-ticket gate), then explicit close/reopen
// actions, then a message submission, otherwise a plain re-render.
func (s *TicketService) Dispatch(ctx context.Context, actor *domain.User, ticketID string, input ActionInput) (*DispatchResult, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	if input.Confirm {
		fieldErrors, err := s.validateFields(ctx, input.Fields)
		if err != nil {
			return nil, err
		}
		if len(fieldErrors) > 0 {
			if ticket.Status == domain.TicketStatusClosed {
				return &DispatchResult{
					Ticket:  ticket,
					Notices: []Notice{{NoticeWarning, "Não foi possível salvar as alterações. Verifique os dados."}},
				}, nil
			}
			return &DispatchResult{Ticket: ticket, FieldErrors: fieldErrors}, nil
		}
		return s.applyUpdate(ctx, actor, ticket, input.Fields)
	}

	switch input.Action {
	case ActionClose:
		return s.closeTicket(ctx, actor, ticket, input.Conclusion)
	case ActionReopen:
		return s.reopenTicket(ctx, actor, ticket)
	}

	if input.SendMessage {
		if ticket.Status == domain.TicketStatusClosed {
			return &DispatchResult{
				Ticket:  ticket,
				Notices: []Notice{{NoticeWarning, "Mensagens não podem ser enviadas para tickets fechados."}},
			}, nil
		}
		return s.sendMessage(ctx, actor, ticket, input.MessageText)
	}

	// No recognized action: re-render without mutation.
	return &DispatchResult{Ticket: ticket}, nil
}

// validateFields checks the required/enumerated fields of a status update.
// A non-empty map means the update must be rejected without mutation.
func (s *TicketService) validateFields(ctx context.Context, fields TicketFieldsInput) (map[string]string, error) {
	fieldErrors := map[string]string{}

	if strings.TrimSpace(fields.Status) == "" {
		fieldErrors["status"] = "O campo situação é obrigatório."
	} else if !domain.TicketStatus(fields.Status).Valid() {
		fieldErrors["status"] = "Escolha uma opção válida."
	}

	if strings.TrimSpace(fields.Priority) == "" {
		fieldErrors["priority"] = "O campo prioridade é obrigatório."
	} else if !domain.TicketPriority(fields.Priority).Valid() {
		fieldErrors["priority"] = "Escolha uma opção válida."
	}

	if fields.SupportLevel != nil && *fields.SupportLevel != "" && !domain.SupportLevel(*fields.SupportLevel).Valid() {
		fieldErrors["support_level"] = "Escolha uma opção válida."
	}

	if id := normalizeID(fields.TechnicianID); id != nil {
		if _, err := s.users.GetByID(ctx, *id); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				fieldErrors["technician"] = "Escolha uma opção válida."
			} else {
				return nil, err
			}
		}
	}

	if len(fieldErrors) == 0 {
		return nil, nil
	}
	return fieldErrors, nil
}

// applyUpdate is the core state machine: it compares each submitted field
// against its prior value, appends one history line and surfaces one
// confirmation per changed field, then persists everything as one update
// with the opposite party's notification flag set.
func (s *TicketService) applyUpdate(ctx context.Context, actor *domain.User, ticket *domain.Ticket, fields TicketFieldsInput) (*DispatchResult, error) {
	priorStatus := ticket.Status
	priorPriority := ticket.Priority
	priorLevel := ticket.SupportLevel
	priorTechnician := ticket.TechnicianID

	ticket.Status = domain.TicketStatus(fields.Status)
	ticket.Priority = domain.TicketPriority(fields.Priority)
	ticket.SupportLevel = normalizeLevel(fields.SupportLevel)
	ticket.TechnicianID = normalizeID(fields.TechnicianID)
	ticket.CompletionDate = fields.CompletionDate

	now := s.now()
	stamp := now.Format(historyTimeLayout)
	var notices []Notice
	var lines []string

	if priorStatus != ticket.Status {
		lines = append(lines, `Status do ticket alterado de "`+priorStatus.Label()+`" para "`+ticket.Status.Label()+`" em `+stamp)
		notices = append(notices, Notice{NoticeSuccess, `Status do ticket alterado para "` + ticket.Status.Label() + `".`})
	}
	if priorPriority != ticket.Priority {
		lines = append(lines, `Prioridade do ticket alterada de "`+priorPriority.Label()+`" para "`+ticket.Priority.Label()+`" em `+stamp)
		notices = append(notices, Notice{NoticeSuccess, `Prioridade do ticket alterada para "` + ticket.Priority.Label() + `".`})
	}
	if !levelsEqual(priorLevel, ticket.SupportLevel) {
		lines = append(lines, `Nível de atendimento alterado de "`+levelLabel(priorLevel)+`" para "`+levelLabel(ticket.SupportLevel)+`" em `+stamp)
		notices = append(notices, Notice{NoticeSuccess, `Nível de atendimento alterado para "` + levelLabel(ticket.SupportLevel) + `".`})
	}
	if !idsEqual(priorTechnician, ticket.TechnicianID) {
		oldName, err := s.userName(ctx, priorTechnician)
		if err != nil {
			return nil, err
		}
		newName, err := s.userName(ctx, ticket.TechnicianID)
		if err != nil {
			return nil, err
		}
		lines = append(lines, `Técnico responsável alterado de "`+oldName+`" para "`+newName+`" em `+stamp)
		notices = append(notices, Notice{NoticeSuccess, `Técnico responsável alterado para "` + newName + `".`})
	}

	for _, line := range lines {
		entry := &domain.HistoryEntry{TicketID: ticket.ID, Message: line, AuthorID: actor.ID}
		if err := s.history.Create(ctx, entry); err != nil {
			return nil, err
		}
	}

	ticket.UpdatedAt = now
	s.flagOpposite(ticket, actor)
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, err
	}

	if len(lines) > 0 {
		s.publishEvent(ctx, actor, events.Event{
			Type:     events.EventTicketUpdated,
			TicketID: ticket.ID,
			Payload: events.TicketUpdatedPayload{
				Status:  ticket.Status,
				Changes: lines,
			},
		})
	}
	return &DispatchResult{Ticket: ticket, Notices: notices}, nil
}

// closeTicket appends the closing comment to the cumulative conclusion log
// and completes the ticket. A blank comment is a no-op.
func (s *TicketService) closeTicket(ctx context.Context, actor *domain.User, ticket *domain.Ticket, comment string) (*DispatchResult, error) {
	comment = strings.TrimSpace(comment)
	if comment == "" {
		return &DispatchResult{Ticket: ticket}, nil
	}

	now := s.now()
	block := "-----------------\n[" + now.Format(historyTimeLayout) + "]\n" + comment
	if ticket.Conclusion != nil && *ticket.Conclusion != "" {
		joined := *ticket.Conclusion + "\n" + block
		ticket.Conclusion = &joined
	} else {
		ticket.Conclusion = &block
	}

	entry := &domain.HistoryEntry{TicketID: ticket.ID, Message: "Conclusão: " + comment, AuthorID: actor.ID}
	if err := s.history.Create(ctx, entry); err != nil {
		return nil, err
	}

	ticket.CompletionDate = &now
	ticket.Active = false
	ticket.Status = domain.TicketStatusCompleted
	ticket.UpdatedAt = now
	s.flagOpposite(ticket, actor)
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, err
	}

	s.publishEvent(ctx, actor, events.Event{
		Type:     events.EventTicketClosed,
		TicketID: ticket.ID,
		Payload:  events.TicketClosedPayload{Comment: comment},
	})
	return &DispatchResult{
		Ticket:  ticket,
		Notices: []Notice{{NoticeSuccess, "Ticket concluído com sucesso!"}},
	}, nil
}

// reopenTicket unconditionally reactivates the ticket.
func (s *TicketService) reopenTicket(ctx context.Context, actor *domain.User, ticket *domain.Ticket) (*DispatchResult, error) {
	previous := ticket.Status

	entry := &domain.HistoryEntry{TicketID: ticket.ID, Message: "Ticket reativado", AuthorID: actor.ID}
	if err := s.history.Create(ctx, entry); err != nil {
		return nil, err
	}

	ticket.CompletionDate = nil
	ticket.Active = true
	ticket.Status = domain.TicketStatusReopened
	ticket.UpdatedAt = s.now()
	s.flagOpposite(ticket, actor)
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, err
	}

	s.publishEvent(ctx, actor, events.Event{
		Type:     events.EventTicketReopened,
		TicketID: ticket.ID,
		Payload:  events.TicketReopenedPayload{PreviousStatus: previous},
	})
	return &DispatchResult{
		Ticket:  ticket,
		Notices: []Notice{{NoticeSuccess, "Ticket reativado com sucesso!"}},
	}, nil
}

// sendMessage appends to the conversation thread and swaps the
// notification flags so only the opposite party sees a pending update.
func (s *TicketService) sendMessage(ctx context.Context, actor *domain.User, ticket *domain.Ticket, text string) (*DispatchResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return &DispatchResult{
			Ticket:  ticket,
			Notices: []Notice{{NoticeWarning, "A mensagem não pode estar vazia."}},
		}, nil
	}

	msg := &domain.Message{TicketID: ticket.ID, AuthorID: actor.ID, Text: text}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, err
	}

	ticket.UpdatedAt = s.now()
	ticket.RecentlyUpdated = true
	switch {
	case ticket.AssignedTo(actor.ID):
		ticket.UpdatedForRequester = true
		ticket.UpdatedForTechnician = false
	case ticket.RequesterID == actor.ID:
		ticket.UpdatedForTechnician = true
		ticket.UpdatedForRequester = false
	}
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, err
	}

	s.publishEvent(ctx, actor, events.Event{
		Type:     events.EventTicketMessageAdded,
		TicketID: ticket.ID,
		Payload: events.TicketMessageAddedPayload{
			MessageID:   msg.ID,
			AuthorID:    actor.ID,
			TextPreview: textPreview(text, 120),
		},
	})
	return &DispatchResult{
		Ticket:  ticket,
		Notices: []Notice{{NoticeSuccess, "Mensagem enviada com sucesso!"}},
	}, nil
}

// flagOpposite marks the party that did not act as having a pending
// update: the assigned technician notifies the requester, anyone else
// notifies the technician.
func (s *TicketService) flagOpposite(ticket *domain.Ticket, actor *domain.User) {
	if ticket.AssignedTo(actor.ID) {
		ticket.UpdatedForRequester = true
	} else {
		ticket.UpdatedForTechnician = true
	}
}

func (s *TicketService) formState(ctx context.Context, ticket *domain.Ticket) (TicketFormState, error) {
	technicians, err := s.users.ListByRole(ctx, domain.RoleTechnician)
	if err != nil {
		return TicketFormState{}, err
	}

	statusOptions := make([]SelectOption, 0, len(domain.TicketStatuses()))
	for _, status := range domain.TicketStatuses() {
		statusOptions = append(statusOptions, SelectOption{Value: string(status), Label: status.Label()})
	}
	priorityOptions := make([]SelectOption, 0, len(domain.TicketPriorities()))
	for _, priority := range domain.TicketPriorities() {
		priorityOptions = append(priorityOptions, SelectOption{Value: string(priority), Label: priority.Label()})
	}
	levelOptions := make([]SelectOption, 0, len(domain.SupportLevels()))
	for _, level := range domain.SupportLevels() {
		levelOptions = append(levelOptions, SelectOption{Value: string(level), Label: level.Label()})
	}
	technicianOptions := make([]SelectOption, 0, len(technicians))
	for _, tech := range technicians {
		technicianOptions = append(technicianOptions, SelectOption{Value: tech.ID, Label: tech.Name})
	}

	return TicketFormState{
		Status:            ticket.Status,
		Priority:          ticket.Priority,
		SupportLevel:      ticket.SupportLevel,
		TechnicianID:      ticket.TechnicianID,
		CompletionDate:    ticket.CompletionDate,
		StatusOptions:     statusOptions,
		PriorityOptions:   priorityOptions,
		LevelOptions:      levelOptions,
		TechnicianOptions: technicianOptions,
	}, nil
}

// userName resolves a technician reference for history lines; a nil
// reference renders as the empty string.
func (s *TicketService) userName(ctx context.Context, id *string) (string, error) {
	if id == nil {
		return "", nil
	}
	user, err := s.users.GetByID(ctx, *id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return user.Name, nil
}

func (s *TicketService) publishEvent(ctx context.Context, actor *domain.User, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now()
	}
	event.Actor = events.Actor{UserID: actor.ID, Role: actor.Role}
	_ = s.dispatcher.Publish(ctx, event)
}

func generateTicketKey() string {
	return "TCK-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

func normalizeID(id *string) *string {
	if id == nil || strings.TrimSpace(*id) == "" {
		return nil
	}
	return id
}

func normalizeLevel(level *string) *domain.SupportLevel {
	if level == nil || strings.TrimSpace(*level) == "" {
		return nil
	}
	l := domain.SupportLevel(*level)
	return &l
}

func levelLabel(level *domain.SupportLevel) string {
	if level == nil {
		return ""
	}
	return level.Label()
}

func levelsEqual(a, b *domain.SupportLevel) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func idsEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func textPreview(text string, max int) string {
	text = strings.TrimSpace(text)
	if len(text) <= max {
		return text
	}
	if max <= 3 {
		return text[:max]
	}
	return text[:max-3] + "..."
}
