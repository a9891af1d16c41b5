package domain

// TicketStatus is the workflow status of a Ticket.
type TicketStatus string

const (
	TicketOpen       TicketStatus = "OPEN"
	TicketInProgress TicketStatus = "IN_PROGRESS"
	TicketResolved   TicketStatus = "RESOLVED"
	TicketClosed     TicketStatus = "CLOSED"
)

// ticketTransitions encodes the permitted workflow edges:
// OPEN -> IN_PROGRESS -> RESOLVED -> CLOSED, with OPEN and RESOLVED
// reachable from each other (reopening). CLOSED is terminal.
var ticketTransitions = map[TicketStatus][]TicketStatus{
	TicketOpen:       {TicketInProgress, TicketResolved},
	TicketInProgress: {TicketResolved},
	TicketResolved:   {TicketClosed, TicketOpen},
	TicketClosed:     {},
}

// Valid reports whether s is one of the known ticket statuses.
func (s TicketStatus) Valid() bool {
	_, ok := ticketTransitions[s]
	return ok
}

// CanTransitionTo reports whether the workflow permits moving from s to next.
// Self-transitions are not permitted.
func (s TicketStatus) CanTransitionTo(next TicketStatus) bool {
	for _, allowed := range ticketTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Resolved reports whether the status carries a resolution timestamp
// (RESOLVED or CLOSED).
func (s TicketStatus) Resolved() bool {
	return s == TicketResolved || s == TicketClosed
}
