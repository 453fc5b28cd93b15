package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dukerupert/eventhub/internal/config"
	"github.com/dukerupert/eventhub/internal/database"
)

func setupServer(t *testing.T) *httptest.Server {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := &config.Config{
		JWTSecret:     "0123456789abcdef0123456789abcdef",
		TokenTTL:      time.Hour,
		QueryTimeout:  5 * time.Second,
		CategoryTTL:   time.Minute,
		ImageDir:      t.TempDir(),
		RegisterLimit: 20,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv, err := New(db, cfg, logger)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func do(t *testing.T, ts *httptest.Server, method, path, token string, body any) (int, []byte) {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, ts.URL+path, r)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, data
}

// signUp registers a user and logs in, returning the user id and token.
func signUp(t *testing.T, ts *httptest.Server, first, email string) (int64, string) {
	t.Helper()
	status, body := do(t, ts, "POST", "/api/users/register", "", map[string]string{
		"firstName": first, "lastName": "Tester", "email": email, "password": "secret123",
	})
	if status != http.StatusCreated {
		t.Fatalf("register %s: status = %d, body = %s", email, status, body)
	}
	status, body = do(t, ts, "POST", "/api/users/login", "", map[string]string{
		"email": email, "password": "secret123",
	})
	if status != http.StatusOK {
		t.Fatalf("login %s: status = %d, body = %s", email, status, body)
	}
	var out struct {
		UserID int64  `json:"userId"`
		Token  string `json:"token"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	return out.UserID, out.Token
}

func createEvent(t *testing.T, ts *httptest.Server, token string, control bool) int64 {
	t.Helper()
	status, body := do(t, ts, "POST", "/api/events", token, map[string]any{
		"title":                     "Board game night",
		"description":               "Bring a game",
		"categoryIds":               []int64{1},
		"date":                      time.Now().Add(48 * time.Hour).UTC().Format(time.RFC3339),
		"capacity":                  20,
		"requiresAttendanceControl": control,
	})
	if status != http.StatusCreated {
		t.Fatalf("create event: status = %d, body = %s", status, body)
	}
	var out struct {
		EventID int64 `json:"eventId"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode create: %v", err)
	}
	return out.EventID
}

type attendeeJSON struct {
	AttendeeID int64  `json:"attendeeId"`
	Status     string `json:"status"`
}

func listAttendees(t *testing.T, ts *httptest.Server, eventID int64, token string) []attendeeJSON {
	t.Helper()
	status, body := do(t, ts, "GET", fmt.Sprintf("/api/events/%d/attendees", eventID), token, nil)
	if status != http.StatusOK {
		t.Fatalf("list attendees: status = %d, body = %s", status, body)
	}
	var out []attendeeJSON
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode attendees: %v", err)
	}
	return out
}

func TestHealth(t *testing.T) {
	ts := setupServer(t)
	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}
}

func TestApprovalFlow(t *testing.T) {
	ts := setupServer(t)
	_, orgToken := signUp(t, ts, "Olive", "olive@example.com")
	userID, userToken := signUp(t, ts, "Uma", "uma@example.com")
	eventID := createEvent(t, ts, orgToken, true)
	path := fmt.Sprintf("/api/events/%d/attendees", eventID)

	status, body := do(t, ts, "POST", path, userToken, nil)
	if status != http.StatusCreated {
		t.Fatalf("register: status = %d, body = %s", status, body)
	}
	var a attendeeJSON
	if err := json.Unmarshal(body, &a); err != nil {
		t.Fatalf("decode attendee: %v", err)
	}
	if a.Status != "pending" || a.AttendeeID != userID {
		t.Errorf("attendee = %+v, want pending user %d", a, userID)
	}

	if got := listAttendees(t, ts, eventID, ""); len(got) != 0 {
		t.Errorf("anonymous sees %d attendees, want 0", len(got))
	}
	if got := listAttendees(t, ts, eventID, userToken); len(got) != 1 {
		t.Errorf("registrant sees %d attendees, want own pending record", len(got))
	}
	if got := listAttendees(t, ts, eventID, orgToken); len(got) != 1 {
		t.Errorf("organizer sees %d attendees, want 1", len(got))
	}

	statusPath := fmt.Sprintf("/api/events/%d/attendees/%d", eventID, userID)
	if status, _ := do(t, ts, "PATCH", statusPath, userToken, map[string]string{"status": "accepted"}); status != http.StatusForbidden {
		t.Errorf("non-organizer status change = %d, want 403", status)
	}
	if status, body := do(t, ts, "PATCH", statusPath, orgToken, map[string]string{"status": "maybe"}); status != http.StatusBadRequest ||
		!strings.Contains(string(body), "maybe") {
		t.Errorf("unknown status = %d %s, want 400 naming the value", status, body)
	}
	if status, body := do(t, ts, "PATCH", statusPath, orgToken, map[string]string{"status": "accepted"}); status != http.StatusOK {
		t.Fatalf("accept: status = %d, body = %s", status, body)
	}

	got := listAttendees(t, ts, eventID, "")
	if len(got) != 1 || got[0].Status != "accepted" {
		t.Errorf("anonymous roster = %+v, want one accepted attendee", got)
	}

	status, body = do(t, ts, "GET", "/api/events?q=board", "", nil)
	if status != http.StatusOK {
		t.Fatalf("search: status = %d, body = %s", status, body)
	}
	var events []struct {
		EventID              int64 `json:"eventId"`
		NumAcceptedAttendees int64 `json:"numAcceptedAttendees"`
	}
	if err := json.Unmarshal(body, &events); err != nil {
		t.Fatalf("decode search: %v", err)
	}
	if len(events) != 1 || events[0].NumAcceptedAttendees != 1 {
		t.Errorf("search = %+v, want one event with one accepted attendee", events)
	}

	if status, _ := do(t, ts, "DELETE", path, userToken, nil); status != http.StatusOK {
		t.Errorf("cancel = %d, want 200", status)
	}
	if status, _ := do(t, ts, "DELETE", path, userToken, nil); status != http.StatusBadRequest {
		t.Errorf("second cancel = %d, want 400", status)
	}
}

func TestDoubleRegistration(t *testing.T) {
	ts := setupServer(t)
	_, orgToken := signUp(t, ts, "Olive", "olive@example.com")
	_, userToken := signUp(t, ts, "Uma", "uma@example.com")
	eventID := createEvent(t, ts, orgToken, false)
	path := fmt.Sprintf("/api/events/%d/attendees", eventID)

	if status, _ := do(t, ts, "POST", path, userToken, nil); status != http.StatusCreated {
		t.Fatalf("first register = %d, want 201", status)
	}
	status, body := do(t, ts, "POST", path, userToken, nil)
	if status != http.StatusBadRequest {
		t.Errorf("second register = %d, want 400", status)
	}
	var out map[string]string
	if err := json.Unmarshal(body, &out); err != nil || out["error"] == "" {
		t.Errorf("body = %s, want JSON error message", body)
	}
}

func TestAuthRequired(t *testing.T) {
	ts := setupServer(t)
	tests := []struct {
		method, path string
	}{
		{"POST", "/api/events"},
		{"PATCH", "/api/events/1"},
		{"DELETE", "/api/events/1"},
		{"PUT", "/api/events/1/image"},
		{"POST", "/api/events/1/attendees"},
		{"DELETE", "/api/events/1/attendees"},
		{"PATCH", "/api/events/1/attendees/2"},
	}
	for _, tt := range tests {
		if status, _ := do(t, ts, tt.method, tt.path, "", nil); status != http.StatusUnauthorized {
			t.Errorf("%s %s = %d, want 401", tt.method, tt.path, status)
		}
	}

	if status, _ := do(t, ts, "GET", "/api/events", "not-a-token", nil); status != http.StatusUnauthorized {
		t.Errorf("bad token = %d, want 401", status)
	}
}

func TestEventLifecycle(t *testing.T) {
	ts := setupServer(t)
	_, orgToken := signUp(t, ts, "Olive", "olive@example.com")
	_, otherToken := signUp(t, ts, "Uma", "uma@example.com")
	eventID := createEvent(t, ts, orgToken, false)
	path := fmt.Sprintf("/api/events/%d", eventID)

	status, body := do(t, ts, "GET", path, "", nil)
	if status != http.StatusOK {
		t.Fatalf("get: status = %d, body = %s", status, body)
	}
	var d struct {
		Title              string  `json:"title"`
		OrganizerFirstName string  `json:"organizerFirstName"`
		Categories         []int64 `json:"categories"`
	}
	if err := json.Unmarshal(body, &d); err != nil {
		t.Fatalf("decode details: %v", err)
	}
	if d.Title != "Board game night" || d.OrganizerFirstName != "Olive" || len(d.Categories) != 1 {
		t.Errorf("details = %+v", d)
	}

	if status, _ := do(t, ts, "PATCH", path, otherToken, map[string]string{"title": "Mine now"}); status != http.StatusForbidden {
		t.Errorf("foreign patch = %d, want 403", status)
	}
	if status, body := do(t, ts, "PATCH", path, orgToken, map[string]string{"title": "Chess night"}); status != http.StatusOK {
		t.Fatalf("patch = %d, body = %s", status, body)
	}
	if status, _ := do(t, ts, "PATCH", path, orgToken, map[string]string{"organizerId": "3"}); status != http.StatusBadRequest {
		t.Errorf("patch unknown field = %d, want 400", status)
	}

	if status, _ := do(t, ts, "DELETE", path, orgToken, nil); status != http.StatusOK {
		t.Fatalf("delete = %d, want 200", status)
	}
	if status, _ := do(t, ts, "GET", path, "", nil); status != http.StatusNotFound {
		t.Errorf("get after delete = %d, want 404", status)
	}
}

func TestImageRoundTrip(t *testing.T) {
	ts := setupServer(t)
	_, orgToken := signUp(t, ts, "Olive", "olive@example.com")
	eventID := createEvent(t, ts, orgToken, false)
	url := fmt.Sprintf("%s/api/events/%d/image", ts.URL, eventID)

	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("image before upload = %d, want 404", resp.StatusCode)
	}

	png := []byte("\x89PNG\r\n\x1a\nfake")
	put := func() int {
		req, _ := http.NewRequest("PUT", url, bytes.NewReader(png))
		req.Header.Set("Content-Type", "image/png")
		req.Header.Set("Authorization", "Bearer "+orgToken)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("put: %v", err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}
	if got := put(); got != http.StatusCreated {
		t.Errorf("first upload = %d, want 201", got)
	}
	if got := put(); got != http.StatusOK {
		t.Errorf("replacement upload = %d, want 200", got)
	}

	resp, err = http.Get(url)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || !bytes.Equal(data, png) {
		t.Errorf("image = %d %q, want 200 with uploaded bytes", resp.StatusCode, data)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %q, want image/png", ct)
	}
}

func TestUserProfile(t *testing.T) {
	ts := setupServer(t)
	oliveID, oliveToken := signUp(t, ts, "Olive", "olive@example.com")
	_, umaToken := signUp(t, ts, "Uma", "uma@example.com")
	path := fmt.Sprintf("/api/users/%d", oliveID)

	for _, tc := range []struct {
		name, token string
		wantEmail   bool
	}{
		{"anonymous", "", false},
		{"other user", umaToken, false},
		{"self", oliveToken, true},
	} {
		status, body := do(t, ts, "GET", path, tc.token, nil)
		if status != http.StatusOK {
			t.Fatalf("%s: get user = %d, body = %s", tc.name, status, body)
		}
		if got := strings.Contains(string(body), "olive@example.com"); got != tc.wantEmail {
			t.Errorf("%s: email shown = %v, want %v (body %s)", tc.name, got, tc.wantEmail, body)
		}
	}
	if status, _ := do(t, ts, "GET", "/api/users/999", "", nil); status != http.StatusNotFound {
		t.Errorf("missing user = %d, want 404", status)
	}

	checks := []struct {
		name   string
		token  string
		body   map[string]any
		status int
	}{
		{"anonymous", "", map[string]any{"firstName": "Liv"}, http.StatusUnauthorized},
		{"other user", umaToken, map[string]any{"firstName": "Liv"}, http.StatusForbidden},
		{"unknown field", oliveToken, map[string]any{"isAdmin": true}, http.StatusBadRequest},
		{"password without current", oliveToken, map[string]any{"password": "brandnew"}, http.StatusBadRequest},
		{"wrong current password", oliveToken, map[string]any{"password": "brandnew", "currentPassword": "guess123"}, http.StatusForbidden},
		{"email taken", oliveToken, map[string]any{"email": "uma@example.com"}, http.StatusBadRequest},
		{"name change", oliveToken, map[string]any{"firstName": "Liv"}, http.StatusOK},
		{"password change", oliveToken, map[string]any{"password": "brandnew", "currentPassword": "secret123"}, http.StatusOK},
	}
	for _, tc := range checks {
		if status, body := do(t, ts, "PATCH", path, tc.token, tc.body); status != tc.status {
			t.Errorf("%s: patch = %d, want %d (body %s)", tc.name, status, tc.status, body)
		}
	}

	status, body := do(t, ts, "GET", path, "", nil)
	if status != http.StatusOK || !strings.Contains(string(body), `"firstName":"Liv"`) {
		t.Errorf("after patch = %d %s, want firstName Liv", status, body)
	}
	if status, _ := do(t, ts, "POST", "/api/users/login", "", map[string]string{
		"email": "olive@example.com", "password": "brandnew",
	}); status != http.StatusOK {
		t.Errorf("login with new password = %d, want 200", status)
	}
}

func TestUserImageRoundTrip(t *testing.T) {
	ts := setupServer(t)
	oliveID, oliveToken := signUp(t, ts, "Olive", "olive@example.com")
	_, umaToken := signUp(t, ts, "Uma", "uma@example.com")
	url := fmt.Sprintf("%s/api/users/%d/image", ts.URL, oliveID)

	send := func(method, token, contentType string, data []byte) int {
		req, _ := http.NewRequest(method, url, bytes.NewReader(data))
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("%s: %v", method, err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}

	gif := []byte("GIF89afake")
	if got := send("GET", "", "", nil); got != http.StatusNotFound {
		t.Errorf("image before upload = %d, want 404", got)
	}
	if got := send("PUT", umaToken, "image/gif", gif); got != http.StatusForbidden {
		t.Errorf("upload by other user = %d, want 403", got)
	}
	if got := send("PUT", oliveToken, "text/plain", gif); got != http.StatusBadRequest {
		t.Errorf("upload with bad type = %d, want 400", got)
	}
	if got := send("PUT", oliveToken, "image/gif", gif); got != http.StatusCreated {
		t.Errorf("first upload = %d, want 201", got)
	}
	if got := send("PUT", oliveToken, "image/gif", gif); got != http.StatusOK {
		t.Errorf("replacement upload = %d, want 200", got)
	}

	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	data, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !bytes.Equal(data, gif) {
		t.Errorf("image = %d %q, want 200 with uploaded bytes", resp.StatusCode, data)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/gif" {
		t.Errorf("Content-Type = %q, want image/gif", ct)
	}

	if got := send("DELETE", umaToken, "", nil); got != http.StatusForbidden {
		t.Errorf("delete by other user = %d, want 403", got)
	}
	if got := send("DELETE", oliveToken, "", nil); got != http.StatusOK {
		t.Errorf("delete = %d, want 200", got)
	}
	if got := send("DELETE", oliveToken, "", nil); got != http.StatusNotFound {
		t.Errorf("second delete = %d, want 404", got)
	}
	if got := send("GET", "", "", nil); got != http.StatusNotFound {
		t.Errorf("image after delete = %d, want 404", got)
	}
}

func TestSearchRejectsBadParams(t *testing.T) {
	ts := setupServer(t)
	for _, q := range []string{
		"sortBy=NEWEST",
		"count=-1",
		"categoryIds=abc",
		"categoryIds=99",
		"filter=password%3D1",
	} {
		if status, body := do(t, ts, "GET", "/api/events?"+q, "", nil); status != http.StatusBadRequest {
			t.Errorf("%s: status = %d, body = %s, want 400", q, status, body)
		}
	}
}

func TestCategories(t *testing.T) {
	ts := setupServer(t)
	status, body := do(t, ts, "GET", "/api/events/categories", "", nil)
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	var cats []struct {
		ID   int64  `json:"categoryId"`
		Name string `json:"name"`
	}
	if err := json.Unmarshal(body, &cats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(cats) != 8 {
		t.Errorf("len = %d, want 8", len(cats))
	}
}

func TestLoginRateLimited(t *testing.T) {
	ts := setupServer(t)
	creds := map[string]string{"email": "nobody@example.com", "password": "wrong"}
	for i := range 10 {
		if status, _ := do(t, ts, "POST", "/api/users/login", "", creds); status != http.StatusUnauthorized {
			t.Fatalf("attempt %d = %d, want 401", i+1, status)
		}
	}
	if status, _ := do(t, ts, "POST", "/api/users/login", "", creds); status != http.StatusTooManyRequests {
		t.Errorf("11th attempt = %d, want 429", status)
	}
	// Registration counts in its own window.
	if status, _ := do(t, ts, "POST", "/api/users/register", "", map[string]string{
		"firstName": "A", "lastName": "B", "email": "ab@example.com", "password": "secret123",
	}); status != http.StatusCreated {
		t.Errorf("register after login limit = %d, want 201", status)
	}
}
