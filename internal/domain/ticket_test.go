package domain

import "testing"

func TestStatusLabels(t *testing.T) {
	cases := map[TicketStatus]string{
		TicketStatusOpen:        "Aberto",
		TicketStatusInAnalysis:  "Em Análise",
		TicketStatusInExecution: "Em Execução",
		TicketStatusCompleted:   "Concluído",
		TicketStatusClosed:      "Fechado",
		TicketStatusReopened:    "Reaberto",
	}
	for status, want := range cases {
		if got := status.Label(); got != want {
			t.Errorf("Label(%q) = %q, want %q", status, got, want)
		}
		if !status.Valid() {
			t.Errorf("%q should be valid", status)
		}
	}
	if TicketStatus("BOGUS").Valid() {
		t.Error("unknown status reported valid")
	}
}

func TestPriorityLabels(t *testing.T) {
	if got := TicketPriorityVeryHigh.Label(); got != "Muito Alta" {
		t.Errorf("Label = %q", got)
	}
	if TicketPriority("").Valid() {
		t.Error("empty priority reported valid")
	}
	if len(TicketPriorities()) != 6 {
		t.Errorf("priorities = %d, want 6", len(TicketPriorities()))
	}
}

func TestSupportLevel(t *testing.T) {
	if !SupportLevelN3.Valid() {
		t.Error("N3 should be valid")
	}
	if SupportLevel("N4").Valid() {
		t.Error("N4 should be invalid")
	}
	if got := SupportLevelN1.Label(); got != "N1" {
		t.Errorf("Label = %q", got)
	}
}

func TestAssignedTo(t *testing.T) {
	tech := "user-1"
	ticket := &Ticket{TechnicianID: &tech}
	if !ticket.AssignedTo("user-1") {
		t.Error("assigned technician not recognized")
	}
	if ticket.AssignedTo("user-2") {
		t.Error("wrong user recognized as assignee")
	}
	if (&Ticket{}).AssignedTo("user-1") {
		t.Error("unassigned ticket matched a user")
	}
}
