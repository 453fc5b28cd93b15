// Package search runs event searches: it validates a FilterSpec against the
// category reference, compiles it and executes it with a deadline.
package search

import (
	"context"
	"log/slog"
	"time"

	"github.com/dukerupert/eventhub/internal/apperr"
	"github.com/dukerupert/eventhub/internal/model"
	"github.com/dukerupert/eventhub/internal/query"
)

// EventSearcher executes a compiled search statement.
type EventSearcher interface {
	Search(ctx context.Context, stmt query.Statement) ([]model.EventSummary, error)
}

type Service struct {
	events     EventSearcher
	categories CategoryReference
	timeout    time.Duration
	logger     *slog.Logger
}

func NewService(events EventSearcher, categories CategoryReference, timeout time.Duration, logger *slog.Logger) *Service {
	return &Service{
		events:     events,
		categories: categories,
		timeout:    timeout,
		logger:     logger,
	}
}

func (s *Service) Search(ctx context.Context, spec query.FilterSpec) ([]model.EventSummary, error) {
	if len(spec.CategoryIDs) > 0 {
		cctx, cancel := context.WithTimeout(ctx, s.timeout)
		valid, err := s.categories.ValidIDs(cctx)
		cancel()
		if err != nil {
			return nil, s.storageErr("load categories", err)
		}
		if err := spec.ValidateCategories(valid); err != nil {
			return nil, err
		}
	}

	stmt, err := query.Compile(spec)
	if err != nil {
		return nil, err
	}

	qctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	events, err := s.events.Search(qctx, stmt)
	if err != nil {
		return nil, s.storageErr("search events", err)
	}
	return events, nil
}

func (s *Service) storageErr(op string, err error) error {
	s.logger.Error("storage failure", "op", op, "error", err)
	return apperr.MarkLogged(apperr.Storage(err))
}
