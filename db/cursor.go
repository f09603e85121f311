package db

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Cursor bounds a history page from above. Exactly one of Timestamp or ID is set.
// Because ids are UUIDv7 they order like their creation time, so either form
// selects "strictly older than" the boundary.
type Cursor struct {
	Timestamp int64
	ID        uuid.UUID
}

// ParseCursor accepts a millisecond timestamp or a message id.
func ParseCursor(s string) (*Cursor, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil {
		if ts < 0 {
			return nil, fmt.Errorf("invalid cursor %q: negative timestamp", s)
		}
		return &Cursor{Timestamp: ts}, nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor %q: want a millisecond timestamp or message id", s)
	}
	return &Cursor{ID: id}, nil
}

func (c *Cursor) String() string {
	if c == nil {
		return ""
	}
	if c.ID != uuid.Nil {
		return c.ID.String()
	}
	return strconv.FormatInt(c.Timestamp, 10)
}
