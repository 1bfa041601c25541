package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"github.com/ben-southpaw/vh-board/board"
	"github.com/ben-southpaw/vh-board/domain"
	"github.com/ben-southpaw/vh-board/storage"
)

type stubBoard struct {
	snapshot board.Snapshot
	voterID  string

	addFn    func(ctx context.Context, column, title string) error
	startFn  func(id string) error
	saveFn   func(ctx context.Context) error
	deleteFn func(ctx context.Context, id string) error
	toggleFn func(ctx context.Context, ticketID, voterID string) error

	setTitle    string
	setContent  string
	cancelCalls int
}

func (s *stubBoard) Snapshot() board.Snapshot { return s.snapshot }

func (s *stubBoard) AddTicket(ctx context.Context, column, title string) error {
	if s.addFn == nil {
		return errors.New("unexpected AddTicket call")
	}
	return s.addFn(ctx, column, title)
}

func (s *stubBoard) StartEdit(id string) error {
	if s.startFn == nil {
		return errors.New("unexpected StartEdit call")
	}
	return s.startFn(id)
}

func (s *stubBoard) SetEditingTitle(title string)     { s.setTitle = title }
func (s *stubBoard) SetEditingContent(content string) { s.setContent = content }

func (s *stubBoard) SaveEdit(ctx context.Context) error {
	if s.saveFn == nil {
		return errors.New("unexpected SaveEdit call")
	}
	return s.saveFn(ctx)
}

func (s *stubBoard) CancelEdit() { s.cancelCalls++ }

func (s *stubBoard) DeleteTicket(ctx context.Context, id string) error {
	if s.deleteFn == nil {
		return errors.New("unexpected DeleteTicket call")
	}
	return s.deleteFn(ctx, id)
}

func (s *stubBoard) ToggleVote(ctx context.Context, ticketID, voterID string) error {
	if s.toggleFn == nil {
		return errors.New("unexpected ToggleVote call")
	}
	return s.toggleFn(ctx, ticketID, voterID)
}

func (s *stubBoard) VoterID() string { return s.voterID }

func emptySnapshot() board.Snapshot {
	return board.Snapshot{
		TicketsByColumn: domain.GroupTickets(nil),
		Votes:           []domain.Vote{},
	}
}

func newTestServer(t *testing.T, b Board) (*echo.Echo, *Broker) {
	t.Helper()
	logger, _ := logtest.NewNullLogger()
	e := echo.New()
	broker := Register(e, b, logger)
	return e, broker
}

func TestGetBoardReturnsSnapshot(t *testing.T) {
	snap := emptySnapshot()
	snap.TicketsByColumn[domain.ColumnIdeas] = []domain.Ticket{{ID: "t1", Title: "New Ticket", Column: domain.ColumnIdeas, Order: 1}}
	e, _ := newTestServer(t, &stubBoard{snapshot: snap})

	req := httptest.NewRequest(http.MethodGet, "/api/board", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	var got board.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(got.TicketsByColumn) != 4 {
		t.Fatalf("expected 4 columns, got %d", len(got.TicketsByColumn))
	}
	if got.TicketsByColumn[domain.ColumnIdeas][0].Title != "New Ticket" {
		t.Fatalf("unexpected snapshot: %#v", got)
	}
}

func TestPostTicketDecodesAndDelegates(t *testing.T) {
	var gotColumn, gotTitle string
	b := &stubBoard{
		snapshot: emptySnapshot(),
		addFn: func(ctx context.Context, column, title string) error {
			gotColumn, gotTitle = column, title
			return nil
		},
	}
	e, _ := newTestServer(t, b)

	body := `{"column":"Ideas","title":"New Ticket"}`
	req := httptest.NewRequest(http.MethodPost, "/api/tickets", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	if gotColumn != domain.ColumnIdeas || gotTitle != "New Ticket" {
		t.Fatalf("unexpected delegation: %s %s", gotColumn, gotTitle)
	}
}

func TestPostTicketRejectsBadBody(t *testing.T) {
	e, _ := newTestServer(t, &stubBoard{snapshot: emptySnapshot()})

	for _, body := range []string{"{", `{"unknown":"field"}`} {
		req := httptest.NewRequest(http.MethodPost, "/api/tickets", strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("body %q: unexpected status %d", body, rec.Code)
		}
	}
}

func TestPostTicketValidationErrorIs400(t *testing.T) {
	b := &stubBoard{
		snapshot: emptySnapshot(),
		addFn: func(ctx context.Context, column, title string) error {
			return errors.New(`unknown column "Backlog"`)
		},
	}
	e, _ := newTestServer(t, b)

	req := httptest.NewRequest(http.MethodPost, "/api/tickets", strings.NewReader(`{"column":"Backlog","title":"x"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status %d", rec.Code)
	}
}

func TestDeleteTicketRepositoryErrorIs500(t *testing.T) {
	b := &stubBoard{
		snapshot: emptySnapshot(),
		deleteFn: func(ctx context.Context, id string) error {
			return &storage.RepositoryError{Op: "delete ticket", Err: errors.New("503")}
		},
	}
	e, _ := newTestServer(t, b)

	req := httptest.NewRequest(http.MethodDelete, "/api/tickets/t1", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "delete ticket") {
		t.Fatalf("expected human-readable message, got %q", rec.Body.String())
	}
}

func TestPatchTicketRunsEditSession(t *testing.T) {
	var started string
	var saved bool
	b := &stubBoard{
		snapshot: emptySnapshot(),
		startFn:  func(id string) error { started = id; return nil },
		saveFn:   func(ctx context.Context) error { saved = true; return nil },
	}
	e, _ := newTestServer(t, b)

	body := `{"title":"edited","content":"details"}`
	req := httptest.NewRequest(http.MethodPatch, "/api/tickets/t1", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	if started != "t1" || !saved {
		t.Fatal("edit session not driven")
	}
	if b.setTitle != "edited" || b.setContent != "details" {
		t.Fatalf("edit buffer not set: %q %q", b.setTitle, b.setContent)
	}
}

func TestToggleVoteUsesHeaderIdentity(t *testing.T) {
	var gotVoter string
	b := &stubBoard{
		snapshot: emptySnapshot(),
		voterID:  "server-self",
		toggleFn: func(ctx context.Context, ticketID, voterID string) error {
			gotVoter = voterID
			return nil
		},
	}
	e, _ := newTestServer(t, b)

	req := httptest.NewRequest(http.MethodPost, "/api/tickets/t1/vote", nil)
	req.Header.Set("X-Voter-Id", "browser-abc")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if gotVoter != "browser-abc" {
		t.Fatalf("unexpected voter id %q", gotVoter)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/tickets/t1/vote", nil)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if gotVoter != "server-self" {
		t.Fatalf("expected fallback identity, got %q", gotVoter)
	}
}

type flushRecorder struct{ *httptest.ResponseRecorder }

func (flushRecorder) Flush() {}

func TestStreamBoardSendsSnapshotAndWakesOnNotify(t *testing.T) {
	b := &stubBoard{snapshot: emptySnapshot()}
	logger, _ := logtest.NewNullLogger()
	e := echo.New()
	broker := Register(e, b, logger)

	req := httptest.NewRequest(http.MethodGet, "/stream", nil)
	rec := flushRecorder{httptest.NewRecorder()}
	ctx, cancel := context.WithCancel(context.Background())
	req = req.WithContext(ctx)
	c := e.NewContext(req, rec)
	handler := streamBoard(b, broker)

	errCh := make(chan error, 1)
	go func() { errCh <- handler(c) }()
	time.Sleep(100 * time.Millisecond)
	broker.Notify()
	time.Sleep(100 * time.Millisecond)
	cancel()
	if err := <-errCh; err != nil {
		t.Fatalf("handler error: %v", err)
	}

	events := strings.Count(rec.Body.String(), "data: ")
	if events != 2 {
		t.Fatalf("expected 2 SSE events, got %d: %q", events, rec.Body.String())
	}
}

func TestHealthz(t *testing.T) {
	e, _ := newTestServer(t, &stubBoard{snapshot: emptySnapshot()})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
}
