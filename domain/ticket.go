package domain

import (
	"fmt"
	"sort"
	"strings"
)

// Board columns. Tickets never live outside these four buckets.
const (
	ColumnGood    = "Good"
	ColumnBad     = "Bad"
	ColumnActions = "Actions"
	ColumnIdeas   = "Ideas"
)

// Columns lists the board columns in display order.
var Columns = []string{ColumnGood, ColumnBad, ColumnActions, ColumnIdeas}

const (
	MaxTitleLen   = 64
	MaxContentLen = 512
)

// PlaceholderContent is the body a freshly added ticket starts with.
const PlaceholderContent = "Double-click to edit title and details"

// Ticket represents a single card on the board.
type Ticket struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Content string `json:"content,omitempty"`
	Column  string `json:"column"`
	Order   int    `json:"order"`
}

// ValidColumn reports whether name is one of the four board columns.
func ValidColumn(name string) bool {
	for _, c := range Columns {
		if c == name {
			return true
		}
	}
	return false
}

// ValidateTicket checks column membership and field bounds for a write.
func ValidateTicket(column, title, content string) error {
	if !ValidColumn(column) {
		return fmt.Errorf("unknown column %q", column)
	}
	if strings.TrimSpace(title) == "" {
		return fmt.Errorf("title is required")
	}
	if len(title) > MaxTitleLen {
		return fmt.Errorf("title exceeds %d characters", MaxTitleLen)
	}
	if len(content) > MaxContentLen {
		return fmt.Errorf("content exceeds %d characters", MaxContentLen)
	}
	return nil
}

// GroupTickets partitions tickets by column, preserving ascending stored
// order within each bucket. Every column key is present even when empty.
func GroupTickets(tickets []Ticket) map[string][]Ticket {
	grouped := make(map[string][]Ticket, len(Columns))
	for _, c := range Columns {
		grouped[c] = []Ticket{}
	}
	sorted := append([]Ticket(nil), tickets...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Order < sorted[j].Order })
	for _, t := range sorted {
		grouped[t.Column] = append(grouped[t.Column], t)
	}
	return grouped
}
