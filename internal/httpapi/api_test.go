package httpapi

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

	"claj/server/internal/config"
	"claj/server/internal/relay"
)

// fakeAdmin records admin calls without a running relay.
type fakeAdmin struct {
	status    relay.Status
	rooms     []relay.RoomSummary
	closed    []string
	broadcast []string
	refreshed int
	closeErr  error
}

func (f *fakeAdmin) Status() relay.Status               { return f.status }
func (f *fakeAdmin) RoomSummaries() []relay.RoomSummary { return f.rooms }
func (f *fakeAdmin) CloseRoom(sid string) error {
	f.closed = append(f.closed, sid)
	return f.closeErr
}
func (f *fakeAdmin) Broadcast(text string) int {
	f.broadcast = append(f.broadcast, text)
	return len(f.rooms)
}
func (f *fakeAdmin) RefreshLists() { f.refreshed++ }

func newTestServer(admin *fakeAdmin) *Server {
	return NewServer(admin, config.New())
}

func TestHealthEndpoint(t *testing.T) {
	api := newTestServer(&fakeAdmin{status: relay.Status{Rooms: 2, Connections: 5}})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	c := api.echo.NewContext(req, rec)

	if err := api.handleHealth(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("status: got %d, want %d", rec.Code, http.StatusOK)
	}

	var resp HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Status != "ok" || resp.Rooms != 2 || resp.Connections != 5 {
		t.Errorf("unexpected payload: %+v", resp)
	}
}

func TestStatusEndpoint(t *testing.T) {
	api := newTestServer(&fakeAdmin{status: relay.Status{
		Version:     3,
		Uptime:      90 * time.Second,
		Connections: 6,
		Rooms:       1,
		Clients:     4,
	}})

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	rec := httptest.NewRecorder()
	c := api.echo.NewContext(req, rec)

	if err := api.handleStatus(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}

	var resp StatusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Version != 3 || resp.UptimeSec != 90 || resp.Connections != 6 || resp.Clients != 4 {
		t.Errorf("unexpected payload: %+v", resp)
	}
}

func TestRoomsEndpointEmptyIsArray(t *testing.T) {
	api := newTestServer(&fakeAdmin{})

	req := httptest.NewRequest(http.MethodGet, "/api/rooms", nil)
	rec := httptest.NewRecorder()
	c := api.echo.NewContext(req, rec)

	if err := api.handleRooms(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if body := strings.TrimSpace(rec.Body.String()); body != "[]" {
		t.Errorf("empty rooms should encode as [], got %q", body)
	}
}

func TestCloseRoomNotFound(t *testing.T) {
	admin := &fakeAdmin{closeErr: relay.ErrRoomNotFound}
	api := newTestServer(admin)

	req := httptest.NewRequest(http.MethodPost, "/api/rooms/abc/close", nil)
	rec := httptest.NewRecorder()
	c := api.echo.NewContext(req, rec)
	c.SetParamNames("sid")
	c.SetParamValues("abc")

	err := api.handleCloseRoom(c)
	if err == nil {
		t.Fatal("expected an HTTP error")
	}
	var he *echo.HTTPError
	if errors.As(err, &he) && he.Code != http.StatusNotFound {
		t.Errorf("code: got %d, want 404", he.Code)
	}
	if len(admin.closed) != 1 || admin.closed[0] != "abc" {
		t.Errorf("close not forwarded: %v", admin.closed)
	}
}

func TestBroadcastValidation(t *testing.T) {
	admin := &fakeAdmin{rooms: []relay.RoomSummary{{SID: "x"}}}
	api := newTestServer(admin)

	req := httptest.NewRequest(http.MethodPost, "/api/broadcast",
		strings.NewReader(`{"text":"  "}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	c := api.echo.NewContext(req, rec)
	if err := api.handleBroadcast(c); err == nil {
		t.Fatal("blank text must be rejected")
	}

	req = httptest.NewRequest(http.MethodPost, "/api/broadcast",
		strings.NewReader(`{"text":"maintenance in 5 minutes"}`))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	c = api.echo.NewContext(req, rec)
	if err := api.handleBroadcast(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if len(admin.broadcast) != 1 || admin.broadcast[0] != "maintenance in 5 minutes" {
		t.Errorf("broadcast not forwarded: %v", admin.broadcast)
	}
	var resp BroadcastResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Rooms != 1 {
		t.Errorf("rooms: got %d, want 1", resp.Rooms)
	}
}

func TestPutConfigUpdatesSetting(t *testing.T) {
	cfg := config.New()
	api := NewServer(&fakeAdmin{}, cfg)

	req := httptest.NewRequest(http.MethodPut, "/api/config",
		strings.NewReader(`{"key":"spamLimit","value":"500"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	c := api.echo.NewContext(req, rec)

	if err := api.handlePutConfig(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if cfg.SpamLimit() != 500 {
		t.Errorf("spamLimit: got %d, want 500", cfg.SpamLimit())
	}

	req = httptest.NewRequest(http.MethodPut, "/api/config",
		strings.NewReader(`{"key":"bogus","value":"1"}`))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	c = api.echo.NewContext(req, rec)
	if err := api.handlePutConfig(c); err == nil {
		t.Fatal("unknown setting must be rejected")
	}
}

func TestBlacklistEndpoints(t *testing.T) {
	cfg := config.New()
	api := NewServer(&fakeAdmin{}, cfg)

	req := httptest.NewRequest(http.MethodPost, "/api/blacklist",
		strings.NewReader(`{"address":"203.0.113.9"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	c := api.echo.NewContext(req, rec)
	if err := api.handleAddBlacklist(c); err != nil {
		t.Fatalf("add: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("add status: got %d, want 201", rec.Code)
	}
	if !cfg.IsBlacklisted("203.0.113.9") {
		t.Fatal("address not blacklisted")
	}

	req = httptest.NewRequest(http.MethodDelete, "/api/blacklist/203.0.113.9", nil)
	rec = httptest.NewRecorder()
	c = api.echo.NewContext(req, rec)
	c.SetParamNames("address")
	c.SetParamValues("203.0.113.9")
	if err := api.handleRemoveBlacklist(c); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if cfg.IsBlacklisted("203.0.113.9") {
		t.Fatal("address still blacklisted")
	}
}

func TestRouteRegistration(t *testing.T) {
	api := newTestServer(&fakeAdmin{})

	routes := api.echo.Routes()
	paths := make(map[string]bool)
	for _, r := range routes {
		paths[r.Path] = true
	}
	for _, want := range []string{
		"/health", "/metrics", "/api/status", "/api/rooms",
		"/api/rooms/:sid/close", "/api/broadcast", "/api/config", "/api/blacklist",
	} {
		if !paths[want] {
			t.Errorf("route %q not registered", want)
		}
	}
}

func TestRunShutsDownOnContextCancel(t *testing.T) {
	api := newTestServer(&fakeAdmin{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		api.Run(ctx, "127.0.0.1:0")
		close(done)
	}()
	cancel()
	<-done // should return quickly after cancel
}
