package search

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/dukerupert/eventhub/internal/apperr"
	"github.com/dukerupert/eventhub/internal/database"
	"github.com/dukerupert/eventhub/internal/model"
	"github.com/dukerupert/eventhub/internal/query"
	"github.com/dukerupert/eventhub/internal/store"
)

func setupService(t *testing.T) (*Service, *store.EventStore) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if _, err := db.Exec(`INSERT INTO users (id, email, first_name, last_name, password) VALUES (10, 'o@example.com', 'Olive', 'Organizer', 'x')`); err != nil {
		t.Fatalf("seed user: %v", err)
	}

	es := store.NewEventStore(db)
	cache := NewCategoryCache(store.NewCategoryStore(db), time.Minute)
	return NewService(es, cache, time.Second, slog.Default()), es
}

func TestSearchRejectsUnknownCategory(t *testing.T) {
	svc, _ := setupService(t)

	_, err := svc.Search(context.Background(), query.FilterSpec{CategoryIDs: []int64{1, 42}})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("err = %v, want validation error", err)
	}
}

func TestSearchReturnsMatches(t *testing.T) {
	svc, es := setupService(t)
	ctx := context.Background()

	base := time.Now().Add(24 * time.Hour)
	for i, title := range []string{"Music Night", "Hackathon", "Music trivia"} {
		if _, err := es.Create(ctx, model.NewEvent{
			Title:       title,
			Description: "x",
			Date:        base.Add(time.Duration(i) * time.Hour),
			CategoryIDs: []int64{int64(i + 1)},
		}, 10); err != nil {
			t.Fatalf("create event: %v", err)
		}
	}

	got, err := svc.Search(ctx, query.FilterSpec{Text: "music", CategoryIDs: []int64{1, 3}, SortBy: query.SortAlphabeticalAsc})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("results = %d, want 2", len(got))
	}
	if got[0].Title != "Music Night" || got[1].Title != "Music trivia" {
		t.Errorf("titles = %q, %q", got[0].Title, got[1].Title)
	}
	if got[0].OrganizerName != "Olive Organizer" {
		t.Errorf("organizer name = %q", got[0].OrganizerName)
	}
}

type failingSearcher struct{}

func (failingSearcher) Search(context.Context, query.Statement) ([]model.EventSummary, error) {
	return nil, errors.New("disk I/O error")
}

func TestSearchStorageFailureIsNotEmptyResult(t *testing.T) {
	svc := NewService(failingSearcher{}, &countingRef{}, time.Second, slog.Default())

	got, err := svc.Search(context.Background(), query.FilterSpec{})
	if !apperr.Is(err, apperr.KindStorage) {
		t.Fatalf("err = %v, want storage error", err)
	}
	if got != nil {
		t.Errorf("results = %v, want nil", got)
	}
	if !apperr.IsLogged(err) {
		t.Error("storage error should be marked logged")
	}
	if apperr.Message(err) != "internal server error" {
		t.Errorf("message = %q, want generic message", apperr.Message(err))
	}
}

func TestSearchCategoryLoadFailure(t *testing.T) {
	svc := NewService(failingSearcher{}, &countingRef{err: errors.New("db down")}, time.Second, slog.Default())

	_, err := svc.Search(context.Background(), query.FilterSpec{CategoryIDs: []int64{1}})
	if !apperr.Is(err, apperr.KindStorage) {
		t.Fatalf("err = %v, want storage error", err)
	}
}
