package services

import (
	"context"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	defaultPageSize = 25
	maxPageSize     = 100
)

// ListOptions carries pagination and free-text search for list endpoints.
type ListOptions struct {
	Page    int
	PerPage int
	Search  string
}

func (o ListOptions) normalise() ListOptions {
	if o.Page < 1 {
		o.Page = 1
	}
	if o.PerPage < 1 {
		o.PerPage = defaultPageSize
	}
	if o.PerPage > maxPageSize {
		o.PerPage = maxPageSize
	}
	o.Search = strings.TrimSpace(o.Search)
	return o
}

func paginate(query *gorm.DB, opts ListOptions) *gorm.DB {
	return query.Offset((opts.Page - 1) * opts.PerPage).Limit(opts.PerPage)
}

// lockForUpdate row-locks the rows a query selects for the rest of the
// transaction. sqlite has no FOR UPDATE syntax and needs none: its
// transactions take a single writer lock anyway.
func lockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

func ensureContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

func normaliseIDs(values []string) []string {
	if len(values) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(values))
	var out []string
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if _, exists := seen[value]; exists {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}
