package api

import (
	"context"

	"github.com/ben-southpaw/vh-board/board"
)

// Board abstracts the controller for handlers.
type Board interface {
	Snapshot() board.Snapshot
	AddTicket(ctx context.Context, column, title string) error
	StartEdit(id string) error
	SetEditingTitle(title string)
	SetEditingContent(content string)
	SaveEdit(ctx context.Context) error
	CancelEdit()
	DeleteTicket(ctx context.Context, id string) error
	ToggleVote(ctx context.Context, ticketID, voterID string) error
	VoterID() string
}
