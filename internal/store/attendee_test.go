package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dukerupert/eventhub/internal/database"
	"github.com/dukerupert/eventhub/internal/model"
)

func setupAttendeeTest(t *testing.T) (*AttendeeStore, int64) {
	t.Helper()
	db := setupTestDB(t)
	seedUser(t, db, 10, "Olive", "Organizer")
	seedUser(t, db, 20, "Uma", "User")
	seedUser(t, db, 30, "Sam", "Spectator")
	seedUser(t, db, 40, "Ria", "Rejected")
	eventID := seedEvent(t, NewEventStore(db), 10, "Meetup", time.Now().Add(72*time.Hour), 4)
	return NewAttendeeStore(db), eventID
}

func TestAttendeeInsertAndGet(t *testing.T) {
	as, eventID := setupAttendeeTest(t)
	ctx := context.Background()
	at := time.Date(2030, 1, 1, 9, 0, 0, 0, time.UTC)

	if err := as.Insert(ctx, eventID, 20, model.StatusPending, at); err != nil {
		t.Fatalf("insert: %v", err)
	}

	a, err := as.Get(ctx, eventID, 20)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if a == nil {
		t.Fatal("expected attendee record")
	}
	if a.Status != model.StatusPending {
		t.Errorf("status = %v, want pending", a.Status)
	}
	if a.FirstName != "Uma" {
		t.Errorf("first name = %q, want Uma", a.FirstName)
	}
	if !a.DateOfInterest.Equal(at) {
		t.Errorf("date of interest = %v, want %v", a.DateOfInterest, at)
	}

	missing, err := as.Get(ctx, eventID, 30)
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	if missing != nil {
		t.Error("expected nil for unregistered user")
	}
}

func TestAttendeeInsertDuplicate(t *testing.T) {
	as, eventID := setupAttendeeTest(t)
	ctx := context.Background()

	if err := as.Insert(ctx, eventID, 20, model.StatusAccepted, time.Now()); err != nil {
		t.Fatalf("insert: %v", err)
	}
	err := as.Insert(ctx, eventID, 20, model.StatusPending, time.Now())
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("err = %v, want ErrDuplicate", err)
	}
}

func TestAttendeeListVisibility(t *testing.T) {
	as, eventID := setupAttendeeTest(t)
	ctx := context.Background()
	base := time.Date(2030, 1, 1, 9, 0, 0, 0, time.UTC)

	for i, r := range []struct {
		user   int64
		status model.AttendanceStatus
	}{{20, model.StatusAccepted}, {30, model.StatusPending}, {40, model.StatusRejected}} {
		if err := as.Insert(ctx, eventID, r.user, r.status, base.Add(time.Duration(i)*time.Minute)); err != nil {
			t.Fatalf("insert %d: %v", r.user, err)
		}
	}

	userIDs := func(list []model.Attendee) []int64 {
		out := []int64{}
		for _, a := range list {
			out = append(out, a.UserID)
		}
		return out
	}

	viewer := int64(30)
	stranger := int64(99)
	tests := []struct {
		name string
		v    Visibility
		want []int64
	}{
		{"all", Visibility{All: true}, []int64{20, 30, 40}},
		{"own pending record", Visibility{Viewer: &viewer}, []int64{20, 30}},
		{"unregistered viewer", Visibility{Viewer: &stranger}, []int64{20}},
		{"anonymous", Visibility{}, []int64{20}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list, err := as.List(ctx, eventID, tt.v)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			got := userIDs(list)
			if len(got) != len(tt.want) {
				t.Fatalf("users = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("users = %v, want %v", got, tt.want)
					break
				}
			}
		})
	}
}

func TestAttendeeListEmptyIsNotNil(t *testing.T) {
	as, eventID := setupAttendeeTest(t)
	list, err := as.List(context.Background(), eventID, Visibility{All: true})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if list == nil {
		t.Error("expected empty non-nil slice")
	}
}

func TestAttendeeDeleteCancellable(t *testing.T) {
	as, eventID := setupAttendeeTest(t)
	ctx := context.Background()

	if err := as.Insert(ctx, eventID, 20, model.StatusPending, time.Now()); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := as.Insert(ctx, eventID, 40, model.StatusRejected, time.Now()); err != nil {
		t.Fatalf("insert: %v", err)
	}

	if err := as.DeleteCancellable(ctx, eventID, 20); err != nil {
		t.Fatalf("delete pending: %v", err)
	}
	if a, _ := as.Get(ctx, eventID, 20); a != nil {
		t.Error("expected pending record to be removed")
	}

	var rc *RowCountError
	if err := as.DeleteCancellable(ctx, eventID, 40); !errors.As(err, &rc) {
		t.Errorf("delete rejected: err = %v, want *RowCountError", err)
	}
	if a, _ := as.Get(ctx, eventID, 40); a == nil {
		t.Error("rejected record must survive")
	}
}

func TestAttendeeUpdateStatus(t *testing.T) {
	as, eventID := setupAttendeeTest(t)
	ctx := context.Background()

	if err := as.Insert(ctx, eventID, 20, model.StatusPending, time.Now()); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := as.UpdateStatus(ctx, eventID, 20, model.StatusAccepted); err != nil {
		t.Fatalf("update status: %v", err)
	}
	a, err := as.Get(ctx, eventID, 20)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if a.Status != model.StatusAccepted {
		t.Errorf("status = %v, want accepted", a.Status)
	}

	var rc *RowCountError
	err = as.UpdateStatus(ctx, eventID, 30, model.StatusAccepted)
	if !errors.As(err, &rc) {
		t.Fatalf("err = %v, want *RowCountError", err)
	}
	if rc.Affected != 0 {
		t.Errorf("affected = %d, want 0", rc.Affected)
	}
}

func TestAttendeeConcurrentInsert(t *testing.T) {
	db, err := database.Open(filepath.Join(t.TempDir(), "concurrent.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	seedUser(t, db, 10, "Olive", "Organizer")
	seedUser(t, db, 20, "Uma", "User")
	eventID := seedEvent(t, NewEventStore(db), 10, "Popular", time.Now().Add(time.Hour), 1)
	as := NewAttendeeStore(db)

	const workers = 20
	var inserted, duplicates, failed atomic.Int32
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := as.Insert(context.Background(), eventID, 20, model.StatusAccepted, time.Now())
			switch {
			case err == nil:
				inserted.Add(1)
			case errors.Is(err, ErrDuplicate):
				duplicates.Add(1)
			default:
				failed.Add(1)
				t.Errorf("insert: %v", err)
			}
		}()
	}
	wg.Wait()

	if inserted.Load() != 1 {
		t.Errorf("inserted = %d, want 1", inserted.Load())
	}
	if duplicates.Load() != workers-1 {
		t.Errorf("duplicates = %d, want %d", duplicates.Load(), workers-1)
	}

	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM event_attendees WHERE event_id = ? AND user_id = 20`, eventID).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Errorf("records = %d, want 1", n)
	}
}
