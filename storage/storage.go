package storage

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/google/uuid"

	"github.com/ben-southpaw/vh-board/domain"
)

// boardPartition keys every row. The board is a single shared collection, so
// one partition holds everything and row keys are globally unique ids.
const boardPartition = "board"

// Notifier is told about vote collection changes after a successful write.
type Notifier interface {
	VoteChanged(ctx context.Context)
}

// Storage provides the ticket and vote repositories over Azure Table Storage.
type Storage struct {
	tickets *aztables.Client
	votes   *aztables.Client
	notify  Notifier
}

// New creates a Storage from the account endpoint and SAS token. The notifier
// may be nil when no live feed is wired.
func New(serviceURL, sasToken, ticketsTable, votesTable string, notify Notifier) (*Storage, error) {
	opts := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	endpoint := strings.TrimSuffix(serviceURL, "/") + "?" + strings.TrimPrefix(sasToken, "?")
	svc, err := aztables.NewServiceClientWithNoCredential(endpoint, &opts)
	if err != nil {
		return nil, repoErr("connect storage", err)
	}
	return &Storage{
		tickets: svc.NewClient(ticketsTable),
		votes:   svc.NewClient(votesTable),
		notify:  notify,
	}, nil
}

// Disabled returns a Storage whose every operation fails with
// ErrNotConfigured. Used when the endpoint or token is missing so the process
// keeps serving instead of crashing.
func Disabled() *Storage {
	return &Storage{}
}

func (s *Storage) disabled() bool { return s == nil || s.tickets == nil }

type ticketEntity struct {
	aztables.Entity
	Title   string `json:"Title"`
	Content string `json:"Content"`
	Column  string `json:"Column"`
	Order   int    `json:"Order"`
}

type voteEntity struct {
	aztables.Entity
	TicketID string `json:"TicketID"`
	VoterID  string `json:"VoterID"`
}

// FetchTickets retrieves every ticket, ascending by stored order, grouped by
// column.
func (s *Storage) FetchTickets(ctx context.Context) (map[string][]domain.Ticket, error) {
	if s.disabled() {
		return nil, ErrNotConfigured
	}
	filter := "PartitionKey eq '" + boardPartition + "'"
	pager := s.tickets.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	tickets := []domain.Ticket{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, repoErr("fetch tickets", err)
		}
		for _, e := range resp.Entities {
			var ent ticketEntity
			if err := json.Unmarshal(e, &ent); err != nil {
				return nil, repoErr("decode ticket", err)
			}
			tickets = append(tickets, domain.Ticket{
				ID:      ent.RowKey,
				Title:   ent.Title,
				Content: ent.Content,
				Column:  ent.Column,
				Order:   ent.Order,
			})
		}
	}
	sort.SliceStable(tickets, func(i, j int) bool { return tickets[i].Order < tickets[j].Order })
	return domain.GroupTickets(tickets), nil
}

// InsertTicket creates a ticket and returns the persisted row including the
// generated id. The caller chooses the order value.
func (s *Storage) InsertTicket(ctx context.Context, column, title, content string, order int) (domain.Ticket, error) {
	if s.disabled() {
		return domain.Ticket{}, ErrNotConfigured
	}
	id := uuid.NewString()
	ent := map[string]any{
		"PartitionKey": boardPartition,
		"RowKey":       id,
		"Title":        title,
		"Content":      content,
		"Column":       column,
		"Order":        order,
	}
	payload, err := json.Marshal(ent)
	if err != nil {
		return domain.Ticket{}, repoErr("encode ticket", err)
	}
	if _, err := s.tickets.AddEntity(ctx, payload, nil); err != nil {
		return domain.Ticket{}, repoErr("insert ticket", err)
	}
	return domain.Ticket{ID: id, Title: title, Content: content, Column: column, Order: order}, nil
}

// TicketUpdate carries the mutable ticket fields. Nil means leave unchanged.
type TicketUpdate struct {
	Title   *string
	Content *string
}

// UpdateTicket merges title/content changes into the stored row.
func (s *Storage) UpdateTicket(ctx context.Context, id string, update TicketUpdate) error {
	if s.disabled() {
		return ErrNotConfigured
	}
	changes := map[string]any{
		"PartitionKey": boardPartition,
		"RowKey":       id,
	}
	if update.Title != nil {
		changes["Title"] = *update.Title
	}
	if update.Content != nil {
		changes["Content"] = *update.Content
	}
	payload, err := json.Marshal(changes)
	if err != nil {
		return repoErr("encode ticket update", err)
	}
	et := azcore.ETagAny
	if _, err := s.tickets.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &et, UpdateMode: aztables.UpdateModeMerge}); err != nil {
		return repoErr("update ticket", err)
	}
	return nil
}

// DeleteTicket hard-deletes the ticket row.
func (s *Storage) DeleteTicket(ctx context.Context, id string) error {
	if s.disabled() {
		return ErrNotConfigured
	}
	if _, err := s.tickets.DeleteEntity(ctx, boardPartition, id, nil); err != nil {
		return repoErr("delete ticket", err)
	}
	return nil
}

// FetchVotes retrieves every vote on the board.
func (s *Storage) FetchVotes(ctx context.Context) ([]domain.Vote, error) {
	if s.disabled() {
		return nil, ErrNotConfigured
	}
	filter := "PartitionKey eq '" + boardPartition + "'"
	pager := s.votes.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	votes := []domain.Vote{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, repoErr("fetch votes", err)
		}
		for _, e := range resp.Entities {
			var ent voteEntity
			if err := json.Unmarshal(e, &ent); err != nil {
				return nil, repoErr("decode vote", err)
			}
			votes = append(votes, domain.Vote{ID: ent.RowKey, TicketID: ent.TicketID, VoterID: ent.VoterID})
		}
	}
	return votes, nil
}

// AddVote inserts unconditionally; duplicate (ticket, voter) pairs are
// possible under races and swept by RemoveVote.
func (s *Storage) AddVote(ctx context.Context, ticketID, voterID string) error {
	if s.disabled() {
		return ErrNotConfigured
	}
	ent := map[string]any{
		"PartitionKey": boardPartition,
		"RowKey":       uuid.NewString(),
		"TicketID":     ticketID,
		"VoterID":      voterID,
	}
	payload, err := json.Marshal(ent)
	if err != nil {
		return repoErr("encode vote", err)
	}
	if _, err := s.votes.AddEntity(ctx, payload, nil); err != nil {
		return repoErr("add vote", err)
	}
	if s.notify != nil {
		s.notify.VoteChanged(ctx)
	}
	return nil
}

// RemoveVote deletes every vote row matching the (ticket, voter) pair.
func (s *Storage) RemoveVote(ctx context.Context, ticketID, voterID string) error {
	if s.disabled() {
		return ErrNotConfigured
	}
	filter := "PartitionKey eq '" + boardPartition + "' and TicketID eq '" + ticketID + "' and VoterID eq '" + voterID + "'"
	pager := s.votes.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	removed := 0
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return repoErr("find votes", err)
		}
		for _, e := range resp.Entities {
			var ent voteEntity
			if err := json.Unmarshal(e, &ent); err != nil {
				return repoErr("decode vote", err)
			}
			if _, err := s.votes.DeleteEntity(ctx, ent.PartitionKey, ent.RowKey, nil); err != nil {
				return repoErr("remove vote", err)
			}
			removed++
		}
	}
	if removed > 0 && s.notify != nil {
		s.notify.VoteChanged(ctx)
	}
	return nil
}
