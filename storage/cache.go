package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ben-southpaw/vh-board/domain"
)

type backend interface {
	FetchTickets(ctx context.Context) (map[string][]domain.Ticket, error)
	InsertTicket(ctx context.Context, column, title, content string, order int) (domain.Ticket, error)
	UpdateTicket(ctx context.Context, id string, update TicketUpdate) error
	DeleteTicket(ctx context.Context, id string) error
	FetchVotes(ctx context.Context) ([]domain.Vote, error)
	AddVote(ctx context.Context, ticketID, voterID string) error
	RemoveVote(ctx context.Context, ticketID, voterID string) error
}

// Cache wraps the repositories with Redis-backed caching for read
// operations. Writes pass through and evict the affected collection.
type Cache struct {
	base  backend
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching wrapper using the provided Redis client and TTL.
func NewCache(base backend, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{base: base, redis: client, ttl: ttl}
}

const (
	ticketsCacheKey = "board:tickets"
	votesCacheKey   = "board:votes"
)

func (c *Cache) FetchTickets(ctx context.Context) (map[string][]domain.Ticket, error) {
	if data, ok := c.load(ctx, ticketsCacheKey); ok {
		var tickets map[string][]domain.Ticket
		if err := json.Unmarshal(data, &tickets); err == nil {
			return tickets, nil
		}
		_ = c.redis.Del(ctx, ticketsCacheKey).Err()
	}
	tickets, err := c.base.FetchTickets(ctx)
	if err != nil {
		return nil, err
	}
	c.store(ctx, ticketsCacheKey, tickets)
	return tickets, nil
}

func (c *Cache) FetchVotes(ctx context.Context) ([]domain.Vote, error) {
	if data, ok := c.load(ctx, votesCacheKey); ok {
		var votes []domain.Vote
		if err := json.Unmarshal(data, &votes); err == nil {
			return votes, nil
		}
		_ = c.redis.Del(ctx, votesCacheKey).Err()
	}
	votes, err := c.base.FetchVotes(ctx)
	if err != nil {
		return nil, err
	}
	c.store(ctx, votesCacheKey, votes)
	return votes, nil
}

func (c *Cache) InsertTicket(ctx context.Context, column, title, content string, order int) (domain.Ticket, error) {
	t, err := c.base.InsertTicket(ctx, column, title, content, order)
	if err != nil {
		return domain.Ticket{}, err
	}
	c.evict(ctx, ticketsCacheKey)
	return t, nil
}

func (c *Cache) UpdateTicket(ctx context.Context, id string, update TicketUpdate) error {
	if err := c.base.UpdateTicket(ctx, id, update); err != nil {
		return err
	}
	c.evict(ctx, ticketsCacheKey)
	return nil
}

func (c *Cache) DeleteTicket(ctx context.Context, id string) error {
	if err := c.base.DeleteTicket(ctx, id); err != nil {
		return err
	}
	c.evict(ctx, ticketsCacheKey)
	return nil
}

func (c *Cache) AddVote(ctx context.Context, ticketID, voterID string) error {
	if err := c.base.AddVote(ctx, ticketID, voterID); err != nil {
		return err
	}
	c.evict(ctx, votesCacheKey)
	return nil
}

func (c *Cache) RemoveVote(ctx context.Context, ticketID, voterID string) error {
	if err := c.base.RemoveVote(ctx, ticketID, voterID); err != nil {
		return err
	}
	c.evict(ctx, votesCacheKey)
	return nil
}

func (c *Cache) load(ctx context.Context, key string) ([]byte, bool) {
	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing storage without failing.
			_ = c.redis.Del(ctx, key).Err()
		}
		return nil, false
	}
	return data, true
}

func (c *Cache) store(ctx context.Context, key string, v any) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, key, data, c.ttl).Err()
}

func (c *Cache) evict(ctx context.Context, key string) {
	if c.redis == nil {
		return
	}
	_, _ = c.redis.Del(ctx, key).Result()
}
