package pagination

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	DefaultLimit = 25
	MaxLimit     = 100
)

const cursorSize = 8 + 16

var errBadCursor = errors.New("malformed cursor")

// Params are the list inputs accepted from HTTP callers.
type Params struct {
	Limit  int
	Cursor string
}

// Cursor points at the last row of a page ordered by (created_at, id) descending.
type Cursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

// Clamp applies DefaultLimit to non-positive values and caps at MaxLimit.
func Clamp(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}

// String packs the cursor as URL-safe base64 of the unix nanos followed by the id bytes.
func (c Cursor) String() string {
	buf := make([]byte, cursorSize)
	binary.BigEndian.PutUint64(buf, uint64(c.CreatedAt.UnixNano()))
	copy(buf[8:], c.ID[:])
	return base64.RawURLEncoding.EncodeToString(buf)
}

// Decode parses a cursor produced by String. An empty value means the first page.
func Decode(value string) (*Cursor, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	buf, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil || len(buf) != cursorSize {
		return nil, errBadCursor
	}
	id, err := uuid.FromBytes(buf[8:])
	if err != nil {
		return nil, errBadCursor
	}
	return &Cursor{
		CreatedAt: time.Unix(0, int64(binary.BigEndian.Uint64(buf))).UTC(),
		ID:        id,
	}, nil
}

// After narrows q to rows strictly after the cursor in descending keyset order
// and fetches one row past limit so Page can tell whether more remain.
func After(q *gorm.DB, c *Cursor, limit int) *gorm.DB {
	if c != nil {
		at := c.CreatedAt.UTC()
		q = q.Where("(created_at < ?) OR (created_at = ? AND id < ?)", at, at, c.ID)
	}
	return q.Order("created_at DESC, id DESC").Limit(Clamp(limit) + 1)
}

// Page drops the lookahead row and returns the cursor for the next page, or nil on the last one.
func Page[T any](rows []T, limit int, key func(T) Cursor) ([]T, *Cursor) {
	limit = Clamp(limit)
	if len(rows) <= limit {
		return rows, nil
	}
	rows = rows[:limit]
	next := key(rows[limit-1])
	return rows, &next
}
