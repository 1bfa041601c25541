package domain

import "sort"

// DisplayOrder returns a column's tickets sorted for rendering: descending
// vote count, ties keeping the incoming (ascending stored order) sequence.
// The stored Order field is never rewritten; this is render-time only.
func DisplayOrder(tickets []Ticket, votes []Vote) []Ticket {
	out := append([]Ticket(nil), tickets...)
	sort.SliceStable(out, func(i, j int) bool {
		return VoteCount(votes, out[i].ID) > VoteCount(votes, out[j].ID)
	})
	return out
}
