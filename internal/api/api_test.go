package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/remedygo/remedyd/internal/backend"
	"github.com/remedygo/remedyd/internal/bus"
	"github.com/remedygo/remedyd/internal/chat"
	"github.com/remedygo/remedyd/internal/session"
	"github.com/remedygo/remedyd/internal/status"
	"github.com/remedygo/remedyd/internal/store"
	"github.com/remedygo/remedyd/internal/tracker"
)

type mockAuth struct {
	ident *backend.Identity
	err   error
}

func (a *mockAuth) Current(_ context.Context) (*backend.Identity, error) {
	return a.ident, a.err
}

type mockSessionRows struct {
	starts int
}

func (m *mockSessionRows) StartSession(_ context.Context, _ string, _ backend.DeviceInfo) (string, error) {
	m.starts++
	return fmt.Sprintf("sess-%d", m.starts), nil
}

func (m *mockSessionRows) EndSession(_ context.Context, _ string) error { return nil }
func (m *mockSessionRows) BeaconSessionEnd(_ string)                    {}

type viewRecord struct{ screen, path string }

type mockViewSink struct {
	views []viewRecord
}

func (s *mockViewSink) ScreenView(_, screen, path string) {
	s.views = append(s.views, viewRecord{screen, path})
}

type testAPI struct {
	router *gin.Engine
	auth   *mockAuth
	cache  *IdentityCache
	views  *mockViewSink
	db     *store.DB
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger, _ := zap.NewDevelopment()

	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	auth := &mockAuth{ident: &backend.Identity{UserID: "u1", DisplayName: "Ana", Role: "member", ProfileComplete: true}}
	cache := NewIdentityCache()
	views := &mockViewSink{}
	tr := tracker.NewTracker(views, logger)
	sessions := session.NewManager(&mockSessionRows{}, nil, bus.New(), time.Minute, logger)

	router := gin.New()
	v1 := router.Group("/v1")
	NewLifecycleHandler(auth, sessions, tr, cache, nil, logger).Register(v1)
	NewStatusHandler("main", status.NewMachine(nil), sessions, cache, db).Register(v1)

	return &testAPI{router: router, auth: auth, cache: cache, views: views, db: db}
}

func (a *testAPI) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func TestAuthenticatedOpensSessionAndCachesIdentity(t *testing.T) {
	a := newTestAPI(t)

	w := a.do(t, http.MethodPost, "/v1/lifecycle/authenticated", `{"platform":"web"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("code = %d, body = %s", w.Code, w.Body.String())
	}

	var resp struct {
		Session *session.Handle `json:"session"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Session == nil || resp.Session.SessionID != "sess-1" {
		t.Errorf("session = %+v", resp.Session)
	}
	if a.cache.Current() == nil {
		t.Error("identity not cached")
	}
}

func TestRouteRequiresAuthentication(t *testing.T) {
	a := newTestAPI(t)

	w := a.do(t, http.MethodPost, "/v1/route", `{"path":"/feed"}`)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("code = %d, want 401", w.Code)
	}
	if len(a.views.views) != 0 {
		t.Error("view recorded without identity")
	}
}

func TestRouteTracksScreenView(t *testing.T) {
	a := newTestAPI(t)
	a.do(t, http.MethodPost, "/v1/lifecycle/authenticated", `{}`)

	w := a.do(t, http.MethodPost, "/v1/route", `{"path":"/feed"}`)
	if w.Code != http.StatusNoContent {
		t.Fatalf("code = %d", w.Code)
	}
	if len(a.views.views) != 1 || a.views.views[0].screen != "Feed" {
		t.Errorf("views = %+v", a.views.views)
	}
}

func TestLogoutClearsIdentityAndSession(t *testing.T) {
	a := newTestAPI(t)
	a.do(t, http.MethodPost, "/v1/lifecycle/authenticated", `{}`)

	w := a.do(t, http.MethodPost, "/v1/lifecycle/logout", "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("code = %d", w.Code)
	}
	if a.cache.Current() != nil {
		t.Error("identity still cached after logout")
	}

	w = a.do(t, http.MethodPost, "/v1/route", `{"path":"/feed"}`)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("route after logout = %d, want 401", w.Code)
	}
}

func TestStatusEndpoint(t *testing.T) {
	a := newTestAPI(t)
	a.do(t, http.MethodPost, "/v1/lifecycle/authenticated", `{}`)

	w := a.do(t, http.MethodGet, "/v1/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("code = %d", w.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["profile"] != "main" {
		t.Errorf("profile = %v", resp["profile"])
	}
	if resp["connectivity"] != string(status.Booting) {
		t.Errorf("connectivity = %v", resp["connectivity"])
	}
	if _, ok := resp["session"]; !ok {
		t.Error("status missing open session")
	}
}

func TestErrorStatusAttribution(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{chat.ErrChatNotFound, http.StatusNotFound},
		{chat.ErrNotMember, http.StatusForbidden},
		{chat.ErrEmptyBody, http.StatusBadRequest},
		{fmt.Errorf("send message: %w: status 503", backend.ErrRemote), http.StatusBadGateway},
		{errors.New("database is locked"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := statusFor(tc.err); got != tc.code {
			t.Errorf("statusFor(%v) = %d, want %d", tc.err, got, tc.code)
		}
	}
}
