package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/dukerupert/eventhub/internal/database"
	"github.com/dukerupert/eventhub/internal/model"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("enable foreign keys: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func seedUser(t *testing.T, db *sql.DB, id int64, first, last string) {
	t.Helper()
	_, err := db.Exec(`INSERT INTO users (id, email, first_name, last_name, password) VALUES (?, ?, ?, ?, 'x')`,
		id, first+"@example.com", first, last)
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
}

func seedEvent(t *testing.T, es *EventStore, organizerID int64, title string, date time.Time, cats ...int64) int64 {
	t.Helper()
	id, err := es.Create(context.Background(), model.NewEvent{
		Title:       title,
		Description: title + " description",
		Date:        date,
		CategoryIDs: cats,
	}, organizerID)
	if err != nil {
		t.Fatalf("seed event: %v", err)
	}
	return id
}
