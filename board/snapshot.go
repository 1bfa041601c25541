package board

import "github.com/ben-southpaw/vh-board/domain"

// Snapshot is a deep copy of the view model for rendering.
type Snapshot struct {
	TicketsByColumn map[string][]domain.Ticket `json:"ticketsByColumn"`
	Votes           []domain.Vote              `json:"votes"`
	EditingTicketID string                     `json:"editingTicketId,omitempty"`
	EditingTitle    string                     `json:"editingTitle,omitempty"`
	EditingContent  string                     `json:"editingContent,omitempty"`
	Loading         bool                       `json:"loading,omitempty"`
	Error           string                     `json:"error,omitempty"`
}

// Snapshot returns the current view model with each column in display
// order: descending vote count, ties keeping stored order. The stored order
// field itself is never rewritten.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	grouped := make(map[string][]domain.Ticket, len(c.ticketsByColumn))
	for col, bucket := range c.ticketsByColumn {
		grouped[col] = domain.DisplayOrder(bucket, c.votes)
	}
	return Snapshot{
		TicketsByColumn: grouped,
		Votes:           append([]domain.Vote(nil), c.votes...),
		EditingTicketID: c.editingTicketID,
		EditingTitle:    c.editingTitle,
		EditingContent:  c.editingContent,
		Loading:         c.loading,
		Error:           c.errMsg,
	}
}
