package repo

import (
	"context"

	"gorm.io/gorm"
)

// Scope is embedded by the gorm repositories so one set of methods serves
// both plain calls and calls inside a caller-owned transaction.
type Scope struct {
	conn *gorm.DB
}

func Bind(conn *gorm.DB) Scope {
	return Scope{conn: conn}
}

// Query returns the handle carrying ctx for cancellation and tracing.
func (s Scope) Query(ctx context.Context) *gorm.DB {
	if ctx == nil {
		return s.conn
	}
	return s.conn.WithContext(ctx)
}

// Within rebinds the scope to tx; nil leaves it unchanged.
func (s Scope) Within(tx *gorm.DB) Scope {
	if tx != nil {
		s.conn = tx
	}
	return s
}
