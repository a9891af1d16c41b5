package domain

import "testing"

func TestTicketStatus_CanTransitionTo(t *testing.T) {
	cases := []struct {
		from, to TicketStatus
		want     bool
	}{
		{TicketOpen, TicketInProgress, true},
		{TicketOpen, TicketResolved, true},
		{TicketOpen, TicketClosed, false},
		{TicketInProgress, TicketResolved, true},
		{TicketInProgress, TicketClosed, false},
		{TicketInProgress, TicketOpen, false},
		{TicketResolved, TicketClosed, true},
		{TicketResolved, TicketOpen, true},
		{TicketResolved, TicketInProgress, false},
		{TicketClosed, TicketOpen, false},
		{TicketClosed, TicketResolved, false},
		{TicketOpen, TicketOpen, false},
		{TicketStatus("BOGUS"), TicketOpen, false},
	}
	for _, c := range cases {
		if got := c.from.CanTransitionTo(c.to); got != c.want {
			t.Errorf("%s -> %s: got %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestTicketStatus_Valid(t *testing.T) {
	for _, s := range []TicketStatus{TicketOpen, TicketInProgress, TicketResolved, TicketClosed} {
		if !s.Valid() {
			t.Errorf("%s should be valid", s)
		}
	}
	if TicketStatus("NOPE").Valid() {
		t.Error("unknown status should be invalid")
	}
}

func TestTicketStatus_Resolved(t *testing.T) {
	if !TicketResolved.Resolved() || !TicketClosed.Resolved() {
		t.Error("RESOLVED and CLOSED must carry a resolution timestamp")
	}
	if TicketOpen.Resolved() || TicketInProgress.Resolved() {
		t.Error("OPEN and IN_PROGRESS must not carry a resolution timestamp")
	}
}

func TestTicketPriority_Rank(t *testing.T) {
	order := []TicketPriority{PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent}
	for i := 1; i < len(order); i++ {
		if order[i-1].Rank() >= order[i].Rank() {
			t.Errorf("rank ordering broken at %s >= %s", order[i-1], order[i])
		}
	}
	if TicketPriority("??").Rank() != -1 {
		t.Error("unknown priority should rank below LOW")
	}
}
