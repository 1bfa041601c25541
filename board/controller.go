// Package board owns the in-memory view model of the kanban board and the
// optimistic update flow: every mutating action updates the view model
// synchronously, issues the remote write, and on failure re-fetches
// authoritative state.
package board

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/ben-southpaw/vh-board/domain"
	"github.com/ben-southpaw/vh-board/storage"
)

// Store abstracts the ticket and vote repositories for the controller.
type Store interface {
	FetchTickets(ctx context.Context) (map[string][]domain.Ticket, error)
	InsertTicket(ctx context.Context, column, title, content string, order int) (domain.Ticket, error)
	UpdateTicket(ctx context.Context, id string, update storage.TicketUpdate) error
	DeleteTicket(ctx context.Context, id string) error
	FetchVotes(ctx context.Context) ([]domain.Vote, error)
	AddVote(ctx context.Context, ticketID, voterID string) error
	RemoveVote(ctx context.Context, ticketID, voterID string) error
}

// Subscriber opens the live vote change feed. The returned func tears the
// feed down and must be safe to call more than once.
type Subscriber func(ctx context.Context, onChange func()) (unsubscribe func())

// Controller holds the view model and serializes all access behind one
// mutex. Remote calls run outside the lock; no ordering is guaranteed
// between in-flight writes, the last response to land wins at the store.
type Controller struct {
	store   Store
	sub     Subscriber
	voterID string
	logger  *log.Logger

	mu              sync.Mutex
	ticketsByColumn map[string][]domain.Ticket
	votes           []domain.Vote
	editingTicketID string
	editingTitle    string
	editingContent  string
	loading         bool
	errMsg          string
	unsubscribe     func()
}

// NewController creates a Controller. voterID is the process-local identity
// used when a caller does not supply one; sub may be nil when no live feed
// is available.
func NewController(store Store, sub Subscriber, voterID string, logger *log.Logger) *Controller {
	if logger == nil {
		logger = log.New()
	}
	return &Controller{
		store:           store,
		sub:             sub,
		voterID:         voterID,
		logger:          logger,
		ticketsByColumn: domain.GroupTickets(nil),
		votes:           []domain.Vote{},
	}
}

// VoterID returns the controller's own anonymous identity.
func (c *Controller) VoterID() string { return c.voterID }

// Load bootstraps the view model: tickets, then votes, then the live
// subscription. Either fetch failure leaves the board in the error state;
// the vote subscription is still registered so the next change heals it.
func (c *Controller) Load(ctx context.Context) error {
	c.mu.Lock()
	c.loading = true
	c.errMsg = ""
	c.mu.Unlock()

	var firstErr error
	tickets, err := c.store.FetchTickets(ctx)
	if err != nil {
		firstErr = err
		c.setError(err)
	} else {
		c.mu.Lock()
		c.ticketsByColumn = tickets
		c.mu.Unlock()
	}

	votes, err := c.store.FetchVotes(ctx)
	if err != nil {
		if firstErr == nil {
			firstErr = err
		}
		c.setError(err)
	} else {
		c.mu.Lock()
		c.votes = votes
		c.mu.Unlock()
	}

	c.mu.Lock()
	c.loading = false
	needSub := c.sub != nil && c.unsubscribe == nil
	c.mu.Unlock()
	if needSub {
		unsub := c.sub(ctx, func() {
			if err := c.RefreshVotes(context.Background()); err != nil {
				c.logger.Errorf("refresh votes: %v", err)
			}
		})
		c.mu.Lock()
		c.unsubscribe = unsub
		c.mu.Unlock()
	}
	return firstErr
}

// Close tears down the live subscription. Idempotent.
func (c *Controller) Close() {
	c.mu.Lock()
	unsub := c.unsubscribe
	c.unsubscribe = nil
	c.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

// AddTicket appends a ticket with the placeholder content to the column,
// optimistically first, then remotely. The view model is reloaded from
// storage afterwards regardless of outcome.
func (c *Controller) AddTicket(ctx context.Context, column, title string) error {
	if err := domain.ValidateTicket(column, title, domain.PlaceholderContent); err != nil {
		return err
	}

	c.mu.Lock()
	order := len(c.ticketsByColumn[column]) + 1
	optimistic := domain.Ticket{
		ID:      "pending-" + uuid.NewString(),
		Title:   title,
		Content: domain.PlaceholderContent,
		Column:  column,
		Order:   order,
	}
	c.ticketsByColumn[column] = append(c.ticketsByColumn[column], optimistic)
	c.mu.Unlock()

	if _, err := c.store.InsertTicket(ctx, column, title, domain.PlaceholderContent, order); err != nil {
		c.setError(err)
		c.reloadTickets(ctx)
		return err
	}
	c.reloadTickets(ctx)
	return nil
}

// StartEdit begins an edit session on the given ticket. Starting edit on the
// ticket already being edited is a no-op; starting on another ticket ends
// the previous session.
func (c *Controller) StartEdit(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.editingTicketID == id {
		return nil
	}
	t, ok := c.findTicket(id)
	if !ok {
		return fmt.Errorf("ticket %s not found", id)
	}
	c.editingTicketID = id
	c.editingTitle = t.Title
	c.editingContent = t.Content
	return nil
}

// SetEditingTitle updates the in-flight edit buffer.
func (c *Controller) SetEditingTitle(title string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.editingTicketID != "" {
		c.editingTitle = title
	}
}

// SetEditingContent updates the in-flight edit buffer.
func (c *Controller) SetEditingContent(content string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.editingTicketID != "" {
		c.editingContent = content
	}
}

// SaveEdit commits the edit session. When title and content are unchanged it
// exits edit mode without a remote write. Otherwise the change is applied
// optimistically, written remotely, and the view model reloaded.
func (c *Controller) SaveEdit(ctx context.Context) error {
	c.mu.Lock()
	id := c.editingTicketID
	if id == "" {
		c.mu.Unlock()
		return nil
	}
	t, ok := c.findTicket(id)
	if !ok {
		// Ticket vanished under the edit session (deleted elsewhere).
		c.clearEditLocked()
		c.mu.Unlock()
		return nil
	}
	title, content := c.editingTitle, c.editingContent
	if title == t.Title && content == t.Content {
		c.clearEditLocked()
		c.mu.Unlock()
		return nil
	}
	if err := domain.ValidateTicket(t.Column, title, content); err != nil {
		c.mu.Unlock()
		return err
	}
	c.applyTicketLocked(id, title, content)
	c.clearEditLocked()
	c.mu.Unlock()

	update := storage.TicketUpdate{Title: &title, Content: &content}
	if err := c.store.UpdateTicket(ctx, id, update); err != nil {
		c.setError(err)
		c.reloadTickets(ctx)
		return err
	}
	c.reloadTickets(ctx)
	return nil
}

// CancelEdit discards the edit session; the view model still holds the
// server values since the optimistic change was never applied.
func (c *Controller) CancelEdit() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearEditLocked()
}

// DeleteTicket removes the ticket optimistically, then remotely. A remote
// failure (including deleting a row already gone) surfaces the message and
// reloads; the board never crashes over it.
func (c *Controller) DeleteTicket(ctx context.Context, id string) error {
	c.mu.Lock()
	for col, bucket := range c.ticketsByColumn {
		for i, t := range bucket {
			if t.ID == id {
				c.ticketsByColumn[col] = append(bucket[:i:i], bucket[i+1:]...)
				break
			}
		}
	}
	if c.editingTicketID == id {
		c.clearEditLocked()
	}
	c.mu.Unlock()

	if err := c.store.DeleteTicket(ctx, id); err != nil {
		c.setError(err)
		c.reloadTickets(ctx)
		return err
	}
	c.reloadTickets(ctx)
	return nil
}

// ToggleVote flips the (ticket, voter) vote: present is removed, absent is
// added. The check against the in-memory list is best-effort only; there is
// no server-side uniqueness constraint. An empty voterID means the
// controller's own identity.
func (c *Controller) ToggleVote(ctx context.Context, ticketID, voterID string) error {
	if voterID == "" {
		voterID = c.voterID
	}

	c.mu.Lock()
	had := domain.HasVote(c.votes, ticketID, voterID)
	if had {
		kept := c.votes[:0:0]
		for _, v := range c.votes {
			if !(v.TicketID == ticketID && v.VoterID == voterID) {
				kept = append(kept, v)
			}
		}
		c.votes = kept
	} else {
		c.votes = append(c.votes, domain.Vote{
			ID:       "pending-" + uuid.NewString(),
			TicketID: ticketID,
			VoterID:  voterID,
		})
	}
	c.mu.Unlock()

	var err error
	if had {
		err = c.store.RemoveVote(ctx, ticketID, voterID)
	} else {
		err = c.store.AddVote(ctx, ticketID, voterID)
	}
	if err != nil {
		// No forced reload: the next subscription-triggered refresh heals it.
		c.setError(err)
		return err
	}
	return c.RefreshVotes(ctx)
}

// RefreshVotes replaces the vote list with authoritative state. Called by
// the live feed on every change event.
func (c *Controller) RefreshVotes(ctx context.Context) error {
	votes, err := c.store.FetchVotes(ctx)
	if err != nil {
		c.setError(err)
		return err
	}
	c.mu.Lock()
	c.votes = votes
	c.mu.Unlock()
	return nil
}

// VoteCount tallies the votes currently held by the ticket.
func (c *Controller) VoteCount(ticketID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return domain.VoteCount(c.votes, ticketID)
}

func (c *Controller) reloadTickets(ctx context.Context) {
	tickets, err := c.store.FetchTickets(ctx)
	if err != nil {
		c.setError(err)
		return
	}
	c.mu.Lock()
	c.ticketsByColumn = tickets
	c.mu.Unlock()
}

func (c *Controller) setError(err error) {
	c.mu.Lock()
	c.errMsg = err.Error()
	c.mu.Unlock()
	c.logger.Error(err)
}

func (c *Controller) clearEditLocked() {
	c.editingTicketID = ""
	c.editingTitle = ""
	c.editingContent = ""
}

func (c *Controller) applyTicketLocked(id, title, content string) {
	for col, bucket := range c.ticketsByColumn {
		for i, t := range bucket {
			if t.ID == id {
				bucket[i].Title = title
				bucket[i].Content = content
				c.ticketsByColumn[col] = bucket
				return
			}
		}
	}
}

func (c *Controller) findTicket(id string) (domain.Ticket, bool) {
	for _, bucket := range c.ticketsByColumn {
		for _, t := range bucket {
			if t.ID == id {
				return t, true
			}
		}
	}
	return domain.Ticket{}, false
}
