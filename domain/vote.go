package domain

// Vote is one voter's endorsement of one ticket.
type Vote struct {
	ID       string `json:"id"`
	TicketID string `json:"ticketId"`
	VoterID  string `json:"voterId"`
}

// HasVote reports whether voterID already holds a vote on ticketID.
func HasVote(votes []Vote, ticketID, voterID string) bool {
	for _, v := range votes {
		if v.TicketID == ticketID && v.VoterID == voterID {
			return true
		}
	}
	return false
}

// VoteCount tallies the votes held by ticketID.
func VoteCount(votes []Vote, ticketID string) int {
	n := 0
	for _, v := range votes {
		if v.TicketID == ticketID {
			n++
		}
	}
	return n
}
