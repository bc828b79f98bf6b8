package search

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/manzil-bh/manzil-backend/internal/marketplace"
)

const pageSize = 500

// ListingSource pages through visible listings; marketplace.Store satisfies it.
type ListingSource interface {
	ListAfter(ctx context.Context, afterID int64, limit int) ([]marketplace.Listing, error)
}

type Reindexer struct {
	source ListingSource
	index  Index
	log    *slog.Logger
}

func NewReindexer(source ListingSource, index Index, log *slog.Logger) *Reindexer {
	return &Reindexer{source: source, index: index, log: log}
}

// Run rebuilds the index from every currently visible listing and returns
// the number of documents written.
func (r *Reindexer) Run(ctx context.Context) (int, error) {
	var docs []Document
	var after int64
	for {
		page, err := r.source.ListAfter(ctx, after, pageSize)
		if err != nil {
			return 0, fmt.Errorf("load listings after %d: %w", after, err)
		}
		for _, l := range page {
			docs = append(docs, DocumentFor(l))
			after = l.ID
		}
		if len(page) < pageSize {
			break
		}
	}
	if err := r.index.ReplaceAll(ctx, docs); err != nil {
		return 0, err
	}
	r.log.Info("search index rebuilt", "documents", len(docs))
	return len(docs), nil
}
