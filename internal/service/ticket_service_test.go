package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/events"
	apperrors "github.com/spec-kit/helpdesk/pkg/util"
)

var testNow = time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)

type fakeTicketRepo struct {
	seq     int
	tickets map[string]*domain.Ticket
}

func newFakeTicketRepo() *fakeTicketRepo {
	return &fakeTicketRepo{tickets: make(map[string]*domain.Ticket)}
}

func (r *fakeTicketRepo) Create(_ context.Context, ticket *domain.Ticket) error {
	r.seq++
	ticket.ID = fmt.Sprintf("ticket-%d", r.seq)
	if ticket.CreatedAt.IsZero() {
		ticket.CreatedAt = testNow.Add(time.Duration(r.seq) * time.Second)
	}
	if ticket.UpdatedAt.IsZero() {
		ticket.UpdatedAt = ticket.CreatedAt
	}
	stored := *ticket
	r.tickets[ticket.ID] = &stored
	return nil
}

func (r *fakeTicketRepo) Update(_ context.Context, ticket *domain.Ticket) error {
	if _, ok := r.tickets[ticket.ID]; !ok {
		return pgx.ErrNoRows
	}
	stored := *ticket
	r.tickets[ticket.ID] = &stored
	return nil
}

func (r *fakeTicketRepo) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	stored, ok := r.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	ticket := *stored
	return &ticket, nil
}

func (r *fakeTicketRepo) ListByStatus(_ context.Context, status *domain.TicketStatus, limit, offset int) ([]domain.Ticket, error) {
	var out []domain.Ticket
	for _, stored := range r.tickets {
		if status != nil && stored.Status != *status {
			continue
		}
		out = append(out, *stored)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeTicketRepo) CountByStatus(_ context.Context, status *domain.TicketStatus) (int, error) {
	count := 0
	for _, stored := range r.tickets {
		if status == nil || stored.Status == *status {
			count++
		}
	}
	return count, nil
}

func (r *fakeTicketRepo) SetRecentlyUpdated(_ context.Context, id string, recentlyUpdated bool) error {
	stored, ok := r.tickets[id]
	if !ok {
		return pgx.ErrNoRows
	}
	stored.RecentlyUpdated = recentlyUpdated
	return nil
}

func (r *fakeTicketRepo) SetNotificationFlags(_ context.Context, id string, forRequester, forTechnician bool) error {
	stored, ok := r.tickets[id]
	if !ok {
		return pgx.ErrNoRows
	}
	stored.UpdatedForRequester = forRequester
	stored.UpdatedForTechnician = forTechnician
	return nil
}

type fakeHistoryRepo struct {
	seq     int
	entries []domain.HistoryEntry
}

func (r *fakeHistoryRepo) Create(_ context.Context, entry *domain.HistoryEntry) error {
	r.seq++
	entry.ID = fmt.Sprintf("history-%d", r.seq)
	entry.CreatedAt = testNow
	r.entries = append(r.entries, *entry)
	return nil
}

func (r *fakeHistoryRepo) ListByTicket(_ context.Context, ticketID string) ([]domain.HistoryEntry, error) {
	var out []domain.HistoryEntry
	for _, entry := range r.entries {
		if entry.TicketID == ticketID {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (r *fakeHistoryRepo) forTicket(ticketID string) []string {
	var out []string
	for _, entry := range r.entries {
		if entry.TicketID == ticketID {
			out = append(out, entry.Message)
		}
	}
	return out
}

type fakeMessageRepo struct {
	seq      int
	messages []domain.Message
}

func (r *fakeMessageRepo) Create(_ context.Context, msg *domain.Message) error {
	r.seq++
	msg.ID = fmt.Sprintf("message-%d", r.seq)
	msg.CreatedAt = testNow
	r.messages = append(r.messages, *msg)
	return nil
}

func (r *fakeMessageRepo) ListByTicket(_ context.Context, ticketID string) ([]domain.Message, error) {
	var out []domain.Message
	for _, msg := range r.messages {
		if msg.TicketID == ticketID {
			out = append(out, msg)
		}
	}
	return out, nil
}

type fakeUserRepo struct {
	users map[string]*domain.User
}

func newFakeUserRepo(users ...*domain.User) *fakeUserRepo {
	repo := &fakeUserRepo{users: make(map[string]*domain.User)}
	for _, user := range users {
		repo.users[user.ID] = user
	}
	return repo
}

func (r *fakeUserRepo) Create(_ context.Context, user *domain.User) error {
	r.users[user.ID] = user
	return nil
}

func (r *fakeUserRepo) Update(_ context.Context, user *domain.User) error {
	r.users[user.ID] = user
	return nil
}

func (r *fakeUserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	user, ok := r.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return user, nil
}

func (r *fakeUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	for _, user := range r.users {
		if user.Email == email {
			return user, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *fakeUserRepo) ListByRole(_ context.Context, role domain.UserRole) ([]domain.User, error) {
	var out []domain.User
	for _, user := range r.users {
		if user.Role == role && user.Status == domain.UserStatusActive {
			out = append(out, *user)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

type fakeSessionStore struct {
	submitted map[string]bool
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{submitted: make(map[string]bool)}
}

func (s *fakeSessionStore) AlreadySubmitted(_ context.Context, sessionID string) (bool, error) {
	return s.submitted[sessionID], nil
}

func (s *fakeSessionStore) MarkSubmitted(_ context.Context, sessionID string) error {
	s.submitted[sessionID] = true
	return nil
}

func (s *fakeSessionStore) ClearSubmitted(_ context.Context, sessionID string) error {
	delete(s.submitted, sessionID)
	return nil
}

type fixture struct {
	svc      *TicketService
	tickets  *fakeTicketRepo
	messages *fakeMessageRepo
	history  *fakeHistoryRepo
	users    *fakeUserRepo
	sessions *fakeSessionStore
}

var (
	requester = &domain.User{ID: "user-req", Name: "João da Silva", Role: domain.RoleRequester, Status: domain.UserStatusActive}
	alice     = &domain.User{ID: "user-alice", Name: "Alice", Role: domain.RoleTechnician, Status: domain.UserStatusActive}
	bruno     = &domain.User{ID: "user-bruno", Name: "Bruno", Role: domain.RoleTechnician, Status: domain.UserStatusActive}
)

func newFixture() *fixture {
	f := &fixture{
		tickets:  newFakeTicketRepo(),
		messages: &fakeMessageRepo{},
		history:  &fakeHistoryRepo{},
		users:    newFakeUserRepo(requester, alice, bruno),
		sessions: newFakeSessionStore(),
	}
	f.svc = NewTicketService(TicketDependencies{
		TicketRepo:  f.tickets,
		MessageRepo: f.messages,
		HistoryRepo: f.history,
		UserRepo:    f.users,
		Sessions:    f.sessions,
		Dispatcher:  events.NewInMemoryDispatcher(),
	})
	f.svc.now = func() time.Time { return testNow }
	return f
}

func (f *fixture) createTicket(t *testing.T, session string) *domain.Ticket {
	t.Helper()
	ticket, _, err := f.svc.CreateTicket(context.Background(), session, requester, TicketCreateInput{
		Title:       "Impressora não funciona",
		Description: "A impressora do setor parou de imprimir.",
		Type:        "Hardware",
	})
	if err != nil {
		t.Fatalf("CreateTicket: %v", err)
	}
	return ticket
}

func TestCreateTicketDefaults(t *testing.T) {
	f := newFixture()

	ticket, notices, err := f.svc.CreateTicket(context.Background(), "sess-1", requester, TicketCreateInput{
		Title:       "Sem acesso à rede",
		Description: "Não consigo acessar a rede interna.",
		Type:        "Rede",
	})
	if err != nil {
		t.Fatalf("CreateTicket: %v", err)
	}
	if ticket.Status != domain.TicketStatusOpen {
		t.Errorf("status = %q, want %q", ticket.Status, domain.TicketStatusOpen)
	}
	if ticket.Priority != domain.TicketPriorityNew {
		t.Errorf("priority = %q, want %q", ticket.Priority, domain.TicketPriorityNew)
	}
	if !ticket.Active {
		t.Error("ticket should be active")
	}
	if ticket.RequesterID != requester.ID {
		t.Errorf("requester = %q, want %q", ticket.RequesterID, requester.ID)
	}
	if !strings.HasPrefix(ticket.ExternalKey, "TCK-") {
		t.Errorf("external key %q missing prefix", ticket.ExternalKey)
	}
	if len(notices) != 1 || notices[0].Message != "Ticket criado com sucesso!" {
		t.Errorf("notices = %+v", notices)
	}
}

func TestCreateTicketRequiresDescription(t *testing.T) {
	f := newFixture()

	_, _, err := f.svc.CreateTicket(context.Background(), "sess-1", requester, TicketCreateInput{Title: "Sem descrição"})
	var domainErr *apperrors.DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected DomainError, got %v", err)
	}
	if domainErr.Code != "VALIDATION_FAILED" {
		t.Errorf("code = %q", domainErr.Code)
	}
	if domainErr.Details["description"] != "O campo descrição é obrigatório." {
		t.Errorf("details = %+v", domainErr.Details)
	}
	if len(f.tickets.tickets) != 0 {
		t.Error("no ticket should be created")
	}
}

func TestCreateTicketDuplicateSubmission(t *testing.T) {
	f := newFixture()

	f.createTicket(t, "sess-1")
	_, _, err := f.svc.CreateTicket(context.Background(), "sess-1", requester, TicketCreateInput{
		Description: "Segunda tentativa do mesmo formulário.",
	})
	if !errors.Is(err, ErrDuplicateSubmission) {
		t.Fatalf("err = %v, want ErrDuplicateSubmission", err)
	}
	if len(f.tickets.tickets) != 1 {
		t.Errorf("tickets = %d, want 1", len(f.tickets.tickets))
	}

	// Serving the form again clears the guard.
	if err := f.svc.OpenCreateForm(context.Background(), "sess-1"); err != nil {
		t.Fatalf("OpenCreateForm: %v", err)
	}
	f.createTicket(t, "sess-1")
	if len(f.tickets.tickets) != 2 {
		t.Errorf("tickets = %d, want 2", len(f.tickets.tickets))
	}
}

func TestCreateTicketStoresAttachmentPath(t *testing.T) {
	f := newFixture()

	ticket, _, err := f.svc.CreateTicket(context.Background(), "sess-1", requester, TicketCreateInput{
		Description: "Segue o print do erro.",
		Attachment:  &AttachmentInput{FileName: "Print Tela.PNG"},
	})
	if err != nil {
		t.Fatalf("CreateTicket: %v", err)
	}
	if ticket.AttachmentPath == nil {
		t.Fatal("attachment path not set")
	}
	want := "anexos/" + ticket.ID + "_joao-da-silva_20260314_150926.PNG"
	if *ticket.AttachmentPath != want {
		t.Errorf("path = %q, want %q", *ticket.AttachmentPath, want)
	}
	stored, _ := f.tickets.GetByID(context.Background(), ticket.ID)
	if stored.AttachmentPath == nil || *stored.AttachmentPath != want {
		t.Errorf("stored path = %v", stored.AttachmentPath)
	}
}

func TestListDashboardPaginationAndRecentFlag(t *testing.T) {
	f := newFixture()
	for i := 0; i < 8; i++ {
		f.svc.OpenCreateForm(context.Background(), "sess-1")
		f.createTicket(t, "sess-1")
	}
	// Age one ticket past the seven-day window.
	old := f.tickets.tickets["ticket-1"]
	old.UpdatedAt = testNow.Add(-8 * 24 * time.Hour)
	old.RecentlyUpdated = true

	page, err := f.svc.ListDashboard(context.Background(), nil, 1)
	if err != nil {
		t.Fatalf("ListDashboard: %v", err)
	}
	if len(page.Tickets) != DashboardPageSize {
		t.Errorf("page size = %d, want %d", len(page.Tickets), DashboardPageSize)
	}
	if page.Total != 8 || page.TotalPages != 2 {
		t.Errorf("total = %d pages = %d", page.Total, page.TotalPages)
	}
	// Newest first.
	if page.Tickets[0].ID != "ticket-8" {
		t.Errorf("first ticket = %q", page.Tickets[0].ID)
	}

	second, err := f.svc.ListDashboard(context.Background(), nil, 2)
	if err != nil {
		t.Fatalf("ListDashboard page 2: %v", err)
	}
	if len(second.Tickets) != 2 {
		t.Errorf("second page size = %d, want 2", len(second.Tickets))
	}
	for _, ticket := range second.Tickets {
		if ticket.ID == "ticket-1" && ticket.RecentlyUpdated {
			t.Error("stale ticket still flagged recently updated")
		}
	}
	if f.tickets.tickets["ticket-1"].RecentlyUpdated {
		t.Error("recompute not persisted")
	}

	// Recomputation is idempotent.
	if _, err := f.svc.ListDashboard(context.Background(), nil, 2); err != nil {
		t.Fatalf("ListDashboard repeat: %v", err)
	}
	if f.tickets.tickets["ticket-1"].RecentlyUpdated {
		t.Error("idempotence broken")
	}
}

func TestListDashboardStatusFilter(t *testing.T) {
	f := newFixture()
	f.createTicket(t, "sess-1")
	f.svc.OpenCreateForm(context.Background(), "sess-1")
	closed := f.createTicket(t, "sess-1")
	f.tickets.tickets[closed.ID].Status = domain.TicketStatusClosed

	open := domain.TicketStatusOpen
	page, err := f.svc.ListDashboard(context.Background(), &open, 1)
	if err != nil {
		t.Fatalf("ListDashboard: %v", err)
	}
	if page.Total != 1 || len(page.Tickets) != 1 {
		t.Errorf("filtered total = %d len = %d", page.Total, len(page.Tickets))
	}
	if page.Tickets[0].Status != domain.TicketStatusOpen {
		t.Errorf("status = %q", page.Tickets[0].Status)
	}
}

func TestViewTicketClearsOnlyViewerFlag(t *testing.T) {
	f := newFixture()
	ticket := f.createTicket(t, "sess-1")
	stored := f.tickets.tickets[ticket.ID]
	stored.TechnicianID = &alice.ID
	stored.UpdatedForRequester = true
	stored.UpdatedForTechnician = true

	view, err := f.svc.ViewTicket(context.Background(), alice, ticket.ID)
	if err != nil {
		t.Fatalf("ViewTicket: %v", err)
	}
	if view.Ticket.UpdatedForTechnician {
		t.Error("technician flag not cleared for technician viewer")
	}
	if !f.tickets.tickets[ticket.ID].UpdatedForRequester {
		t.Error("requester flag must survive a technician view")
	}

	view, err = f.svc.ViewTicket(context.Background(), requester, ticket.ID)
	if err != nil {
		t.Fatalf("ViewTicket: %v", err)
	}
	if view.Ticket.UpdatedForRequester {
		t.Error("requester flag not cleared for requester viewer")
	}
	if f.tickets.tickets[ticket.ID].UpdatedForRequester || f.tickets.tickets[ticket.ID].UpdatedForTechnician {
		t.Error("both flags should be clear after both parties viewed")
	}
}

func TestViewTicketFormOptions(t *testing.T) {
	f := newFixture()
	ticket := f.createTicket(t, "sess-1")

	view, err := f.svc.ViewTicket(context.Background(), requester, ticket.ID)
	if err != nil {
		t.Fatalf("ViewTicket: %v", err)
	}
	if len(view.Form.StatusOptions) != 6 {
		t.Errorf("status options = %d, want 6", len(view.Form.StatusOptions))
	}
	if view.Form.StatusOptions[0].Label != "Aberto" {
		t.Errorf("first status label = %q", view.Form.StatusOptions[0].Label)
	}
	if len(view.Form.PriorityOptions) != 6 {
		t.Errorf("priority options = %d, want 6", len(view.Form.PriorityOptions))
	}
	if len(view.Form.LevelOptions) != 3 {
		t.Errorf("level options = %d, want 3", len(view.Form.LevelOptions))
	}
	// Active technicians, ordered by name.
	if len(view.Form.TechnicianOptions) != 2 || view.Form.TechnicianOptions[0].Label != "Alice" {
		t.Errorf("technician options = %+v", view.Form.TechnicianOptions)
	}
}

func TestDispatchUpdateWritesHistoryPerChangedField(t *testing.T) {
	f := newFixture()
	ticket := f.createTicket(t, "sess-1")

	level := string(domain.SupportLevelN2)
	result, err := f.svc.Dispatch(context.Background(), alice, ticket.ID, ActionInput{
		Confirm: true,
		Fields: TicketFieldsInput{
			Status:       string(domain.TicketStatusInAnalysis),
			Priority:     string(domain.TicketPriorityHigh),
			SupportLevel: &level,
			TechnicianID: &alice.ID,
		},
	})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	lines := f.history.forTicket(ticket.ID)
	want := []string{
		`Status do ticket alterado de "Aberto" para "Em Análise" em 14/03/2026 15:09:26`,
		`Prioridade do ticket alterada de "Novo" para "Alta" em 14/03/2026 15:09:26`,
		`Nível de atendimento alterado de "" para "N2" em 14/03/2026 15:09:26`,
		`Técnico responsável alterado de "" para "Alice" em 14/03/2026 15:09:26`,
	}
	if len(lines) != len(want) {
		t.Fatalf("history lines = %d, want %d: %v", len(lines), len(want), lines)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
	if len(result.Notices) != 4 {
		t.Errorf("notices = %d, want 4", len(result.Notices))
	}
	if result.Notices[3].Message != `Técnico responsável alterado para "Alice".` {
		t.Errorf("technician notice = %q", result.Notices[3].Message)
	}
	// Alice was not assigned before this update, so the technician is the
	// notified party.
	stored := f.tickets.tickets[ticket.ID]
	if !stored.UpdatedForTechnician || stored.UpdatedForRequester {
		t.Errorf("flags = requester:%v technician:%v", stored.UpdatedForRequester, stored.UpdatedForTechnician)
	}
}

func TestDispatchUpdateNoChangesNoHistory(t *testing.T) {
	f := newFixture()
	ticket := f.createTicket(t, "sess-1")

	result, err := f.svc.Dispatch(context.Background(), alice, ticket.ID, ActionInput{
		Confirm: true,
		Fields: TicketFieldsInput{
			Status:   string(domain.TicketStatusOpen),
			Priority: string(domain.TicketPriorityNew),
		},
	})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(f.history.entries) != 0 {
		t.Errorf("history = %v, want none", f.history.forTicket(ticket.ID))
	}
	if len(result.Notices) != 0 {
		t.Errorf("notices = %+v, want none", result.Notices)
	}
}

func TestDispatchUpdateTechnicianReassignment(t *testing.T) {
	f := newFixture()
	ticket := f.createTicket(t, "sess-1")
	f.tickets.tickets[ticket.ID].TechnicianID = &alice.ID

	_, err := f.svc.Dispatch(context.Background(), alice, ticket.ID, ActionInput{
		Confirm: true,
		Fields: TicketFieldsInput{
			Status:       string(domain.TicketStatusOpen),
			Priority:     string(domain.TicketPriorityNew),
			TechnicianID: &bruno.ID,
		},
	})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	lines := f.history.forTicket(ticket.ID)
	if len(lines) != 1 || lines[0] != `Técnico responsável alterado de "Alice" para "Bruno" em 14/03/2026 15:09:26` {
		t.Errorf("history = %v", lines)
	}
}

func TestDispatchUpdateValidation(t *testing.T) {
	f := newFixture()
	ticket := f.createTicket(t, "sess-1")

	result, err := f.svc.Dispatch(context.Background(), alice, ticket.ID, ActionInput{
		Confirm: true,
		Fields:  TicketFieldsInput{Status: "", Priority: "BOGUS"},
	})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if result.FieldErrors["status"] != "O campo situação é obrigatório." {
		t.Errorf("status error = %q", result.FieldErrors["status"])
	}
	if result.FieldErrors["priority"] != "Escolha uma opção válida." {
		t.Errorf("priority error = %q", result.FieldErrors["priority"])
	}
	if len(f.history.entries) != 0 {
		t.Error("rejected update must not write history")
	}
	stored := f.tickets.tickets[ticket.ID]
	if stored.Status != domain.TicketStatusOpen {
		t.Errorf("status mutated to %q", stored.Status)
	}
}

func TestDispatchUpdateUnknownTechnician(t *testing.T) {
	f := newFixture()
	ticket := f.createTicket(t, "sess-1")

	ghost := "user-ghost"
	result, err := f.svc.Dispatch(context.Background(), alice, ticket.ID, ActionInput{
		Confirm: true,
		Fields: TicketFieldsInput{
			Status:       string(domain.TicketStatusOpen),
			Priority:     string(domain.TicketPriorityNew),
			TechnicianID: &ghost,
		},
	})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if result.FieldErrors["technician"] != "Escolha uma opção válida." {
		t.Errorf("technician error = %q", result.FieldErrors["technician"])
	}
}

func TestDispatchUpdateClosedGate(t *testing.T) {
	f := newFixture()
	ticket := f.createTicket(t, "sess-1")
	f.tickets.tickets[ticket.ID].Status = domain.TicketStatusClosed

	// Invalid submission against a closed ticket yields the generic warning
	// instead of field errors.
	result, err := f.svc.Dispatch(context.Background(), alice, ticket.ID, ActionInput{
		Confirm: true,
		Fields:  TicketFieldsInput{Status: "", Priority: ""},
	})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(result.FieldErrors) != 0 {
		t.Errorf("field errors = %+v, want none", result.FieldErrors)
	}
	if len(result.Notices) != 1 || result.Notices[0].Level != NoticeWarning {
		t.Fatalf("notices = %+v", result.Notices)
	}
	if result.Notices[0].Message != "Não foi possível salvar as alterações. Verifique os dados." {
		t.Errorf("message = %q", result.Notices[0].Message)
	}
}

func TestCloseTicket(t *testing.T) {
	f := newFixture()
	ticket := f.createTicket(t, "sess-1")
	f.tickets.tickets[ticket.ID].TechnicianID = &alice.ID

	result, err := f.svc.Dispatch(context.Background(), alice, ticket.ID, ActionInput{
		Action:     ActionClose,
		Conclusion: "Problema resolvido após troca do cabo.",
	})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	stored := f.tickets.tickets[ticket.ID]
	if stored.Status != domain.TicketStatusCompleted {
		t.Errorf("status = %q, want %q", stored.Status, domain.TicketStatusCompleted)
	}
	if stored.Active {
		t.Error("closed ticket must be inactive")
	}
	if stored.CompletionDate == nil || !stored.CompletionDate.Equal(testNow) {
		t.Errorf("completion date = %v", stored.CompletionDate)
	}
	wantBlock := "-----------------\n[14/03/2026 15:09:26]\nProblema resolvido após troca do cabo."
	if stored.Conclusion == nil || *stored.Conclusion != wantBlock {
		t.Errorf("conclusion = %v", stored.Conclusion)
	}
	lines := f.history.forTicket(ticket.ID)
	if len(lines) != 1 || lines[0] != "Conclusão: Problema resolvido após troca do cabo." {
		t.Errorf("history = %v", lines)
	}
	// The assigned technician closed it, so the requester is notified.
	if !stored.UpdatedForRequester || stored.UpdatedForTechnician {
		t.Errorf("flags = requester:%v technician:%v", stored.UpdatedForRequester, stored.UpdatedForTechnician)
	}
	if len(result.Notices) != 1 || result.Notices[0].Message != "Ticket concluído com sucesso!" {
		t.Errorf("notices = %+v", result.Notices)
	}
}

func TestCloseTicketBlankCommentIsNoOp(t *testing.T) {
	f := newFixture()
	ticket := f.createTicket(t, "sess-1")

	result, err := f.svc.Dispatch(context.Background(), alice, ticket.ID, ActionInput{
		Action:     ActionClose,
		Conclusion: "   ",
	})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(result.Notices) != 0 {
		t.Errorf("notices = %+v", result.Notices)
	}
	stored := f.tickets.tickets[ticket.ID]
	if stored.Status != domain.TicketStatusOpen || !stored.Active {
		t.Errorf("blank close mutated ticket: status=%q active=%v", stored.Status, stored.Active)
	}
	if len(f.history.entries) != 0 {
		t.Error("blank close wrote history")
	}
}

func TestCloseTicketAppendsConclusion(t *testing.T) {
	f := newFixture()
	ticket := f.createTicket(t, "sess-1")

	if _, err := f.svc.Dispatch(context.Background(), alice, ticket.ID, ActionInput{Action: ActionClose, Conclusion: "Primeira conclusão."}); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if _, err := f.svc.Dispatch(context.Background(), alice, ticket.ID, ActionInput{Action: ActionReopen}); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if _, err := f.svc.Dispatch(context.Background(), alice, ticket.ID, ActionInput{Action: ActionClose, Conclusion: "Segunda conclusão."}); err != nil {
		t.Fatalf("second close: %v", err)
	}

	stored := f.tickets.tickets[ticket.ID]
	if stored.Conclusion == nil {
		t.Fatal("conclusion missing")
	}
	if strings.Count(*stored.Conclusion, "-----------------") != 2 {
		t.Errorf("conclusion log = %q", *stored.Conclusion)
	}
	if !strings.Contains(*stored.Conclusion, "Primeira conclusão.") || !strings.Contains(*stored.Conclusion, "Segunda conclusão.") {
		t.Errorf("conclusion log = %q", *stored.Conclusion)
	}
}

func TestReopenTicket(t *testing.T) {
	f := newFixture()
	ticket := f.createTicket(t, "sess-1")
	if _, err := f.svc.Dispatch(context.Background(), alice, ticket.ID, ActionInput{Action: ActionClose, Conclusion: "Resolvido."}); err != nil {
		t.Fatalf("close: %v", err)
	}

	result, err := f.svc.Dispatch(context.Background(), requester, ticket.ID, ActionInput{Action: ActionReopen})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	stored := f.tickets.tickets[ticket.ID]
	if stored.Status != domain.TicketStatusReopened {
		t.Errorf("status = %q, want %q", stored.Status, domain.TicketStatusReopened)
	}
	if !stored.Active {
		t.Error("reopened ticket must be active")
	}
	if stored.CompletionDate != nil {
		t.Errorf("completion date = %v, want nil", stored.CompletionDate)
	}
	lines := f.history.forTicket(ticket.ID)
	if lines[len(lines)-1] != "Ticket reativado" {
		t.Errorf("last history line = %q", lines[len(lines)-1])
	}
	if len(result.Notices) != 1 || result.Notices[0].Message != "Ticket reativado com sucesso!" {
		t.Errorf("notices = %+v", result.Notices)
	}
}

func TestSendMessageFlagSwap(t *testing.T) {
	f := newFixture()
	ticket := f.createTicket(t, "sess-1")
	f.tickets.tickets[ticket.ID].TechnicianID = &alice.ID
	f.tickets.tickets[ticket.ID].UpdatedForTechnician = true

	// Assigned technician writes: requester is notified, technician's own
	// flag drops.
	result, err := f.svc.Dispatch(context.Background(), alice, ticket.ID, ActionInput{
		SendMessage: true,
		MessageText: "Já estou verificando.",
	})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	stored := f.tickets.tickets[ticket.ID]
	if !stored.UpdatedForRequester || stored.UpdatedForTechnician {
		t.Errorf("flags after technician message = requester:%v technician:%v", stored.UpdatedForRequester, stored.UpdatedForTechnician)
	}
	if !stored.RecentlyUpdated {
		t.Error("message must mark the ticket recently updated")
	}
	if len(result.Notices) != 1 || result.Notices[0].Message != "Mensagem enviada com sucesso!" {
		t.Errorf("notices = %+v", result.Notices)
	}

	// Requester replies: mirrored swap.
	if _, err := f.svc.Dispatch(context.Background(), requester, ticket.ID, ActionInput{
		SendMessage: true,
		MessageText: "Obrigado!",
	}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	stored = f.tickets.tickets[ticket.ID]
	if !stored.UpdatedForTechnician || stored.UpdatedForRequester {
		t.Errorf("flags after requester message = requester:%v technician:%v", stored.UpdatedForRequester, stored.UpdatedForTechnician)
	}
	if len(f.messages.messages) != 2 {
		t.Errorf("messages = %d, want 2", len(f.messages.messages))
	}
}

func TestSendMessageThirdPartyLeavesFlags(t *testing.T) {
	f := newFixture()
	ticket := f.createTicket(t, "sess-1")
	f.tickets.tickets[ticket.ID].TechnicianID = &alice.ID

	// Bruno is neither the requester nor the assigned technician.
	if _, err := f.svc.Dispatch(context.Background(), bruno, ticket.ID, ActionInput{
		SendMessage: true,
		MessageText: "Passando o caso para a Alice.",
	}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	stored := f.tickets.tickets[ticket.ID]
	if stored.UpdatedForRequester || stored.UpdatedForTechnician {
		t.Errorf("third-party message touched flags: requester:%v technician:%v", stored.UpdatedForRequester, stored.UpdatedForTechnician)
	}
	if len(f.messages.messages) != 1 {
		t.Errorf("messages = %d, want 1", len(f.messages.messages))
	}
}

func TestSendMessageBlankIsRejected(t *testing.T) {
	f := newFixture()
	ticket := f.createTicket(t, "sess-1")

	result, err := f.svc.Dispatch(context.Background(), requester, ticket.ID, ActionInput{
		SendMessage: true,
		MessageText: "  \n ",
	})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(result.Notices) != 1 || result.Notices[0].Level != NoticeWarning {
		t.Fatalf("notices = %+v", result.Notices)
	}
	if result.Notices[0].Message != "A mensagem não pode estar vazia." {
		t.Errorf("message = %q", result.Notices[0].Message)
	}
	if len(f.messages.messages) != 0 {
		t.Error("blank message was persisted")
	}
	if f.tickets.tickets[ticket.ID].UpdatedForTechnician {
		t.Error("blank message flipped a flag")
	}
}

func TestSendMessageClosedGate(t *testing.T) {
	f := newFixture()
	ticket := f.createTicket(t, "sess-1")
	f.tickets.tickets[ticket.ID].Status = domain.TicketStatusClosed

	result, err := f.svc.Dispatch(context.Background(), requester, ticket.ID, ActionInput{
		SendMessage: true,
		MessageText: "Ainda está acontecendo.",
	})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(result.Notices) != 1 || result.Notices[0].Message != "Mensagens não podem ser enviadas para tickets fechados." {
		t.Errorf("notices = %+v", result.Notices)
	}
	if len(f.messages.messages) != 0 {
		t.Error("message persisted on closed ticket")
	}
}

func TestDispatchUnknownActionReRenders(t *testing.T) {
	f := newFixture()
	ticket := f.createTicket(t, "sess-1")

	result, err := f.svc.Dispatch(context.Background(), requester, ticket.ID, ActionInput{})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(result.Notices) != 0 || len(result.FieldErrors) != 0 {
		t.Errorf("result = %+v", result)
	}
	if result.Ticket.ID != ticket.ID {
		t.Errorf("ticket = %q", result.Ticket.ID)
	}
}

func TestDispatchUnknownTicket(t *testing.T) {
	f := newFixture()

	_, err := f.svc.Dispatch(context.Background(), requester, "ticket-missing", ActionInput{Action: ActionClose, Conclusion: "x"})
	if !errors.Is(err, pgx.ErrNoRows) {
		t.Fatalf("err = %v, want pgx.ErrNoRows", err)
	}
}

func TestCreateTicketPublishesEvent(t *testing.T) {
	f := newFixture()
	dispatcher := events.NewInMemoryDispatcher()
	var got []events.Event
	dispatcher.Subscribe(events.EventTicketCreated, func(_ context.Context, event events.Event) error {
		got = append(got, event)
		return nil
	})
	f.svc.dispatcher = dispatcher

	ticket := f.createTicket(t, "sess-1")
	if len(got) != 1 {
		t.Fatalf("events = %d, want 1", len(got))
	}
	if got[0].TicketID != ticket.ID || got[0].Actor.UserID != requester.ID {
		t.Errorf("event = %+v", got[0])
	}
}
