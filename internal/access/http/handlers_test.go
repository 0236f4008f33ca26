package accesshttp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/gunnchOS3k/arcade-core/internal/access"
)

type stubAccessService struct {
	decision access.Decision
	score    int
	err      error

	lastPrincipal string
	lastResource  string
	lastAction    string
	created       []access.User
	roleChanges   map[string]access.Role
	deactivated   []string
}

func (s *stubAccessService) Authorize(ctx context.Context, principalID, resource, action string, reqCtx access.RequestContext) (access.Decision, error) {
	s.lastPrincipal = principalID
	s.lastResource = resource
	s.lastAction = action
	return s.decision, s.err
}

func (s *stubAccessService) CreateUser(ctx context.Context, actorID string, user access.User) error {
	if s.err != nil {
		return s.err
	}
	s.created = append(s.created, user)
	return nil
}

func (s *stubAccessService) UpdateUserRole(ctx context.Context, actorID, targetID string, role access.Role) error {
	if s.err != nil {
		return s.err
	}
	if s.roleChanges == nil {
		s.roleChanges = map[string]access.Role{}
	}
	s.roleChanges[targetID] = role
	return nil
}

func (s *stubAccessService) DeactivateUser(ctx context.Context, actorID, targetID string) error {
	if s.err != nil {
		return s.err
	}
	s.deactivated = append(s.deactivated, targetID)
	return nil
}

func (s *stubAccessService) SecurityScore(ctx context.Context) (int, error) {
	return s.score, s.err
}

func newTestRouter(service *stubAccessService) chi.Router {
	handler := NewHandler(nil, service, nil)
	r := chi.NewRouter()
	handler.MountRoutes(r)
	return r
}

func TestAuthorizeAllowed(t *testing.T) {
	service := &stubAccessService{decision: access.Decision{Allowed: true, AuditRequired: true}}
	router := newTestRouter(service)

	body := `{"principal_id":"u-1","resource":"games","action":"read"}`
	req := httptest.NewRequest(http.MethodPost, "/access/authorize", strings.NewReader(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if service.lastPrincipal != "u-1" || service.lastResource != "games" || service.lastAction != "read" {
		t.Fatalf("unexpected call: %q %q %q", service.lastPrincipal, service.lastResource, service.lastAction)
	}
	if !strings.Contains(rr.Body.String(), `"allowed":true`) {
		t.Fatalf("expected allowed decision in body: %s", rr.Body.String())
	}
}

func TestAuthorizeMissingResource(t *testing.T) {
	router := newTestRouter(&stubAccessService{})

	req := httptest.NewRequest(http.MethodPost, "/access/authorize", strings.NewReader(`{"principal_id":"u-1","action":"read"}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestAuthorizeMalformedBody(t *testing.T) {
	router := newTestRouter(&stubAccessService{})

	req := httptest.NewRequest(http.MethodPost, "/access/authorize", strings.NewReader("{not json"))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestCreateUser(t *testing.T) {
	service := &stubAccessService{}
	router := newTestRouter(service)

	body := `{"actor_id":"admin-1","id":"u-9","role":"member","mfa_enabled":true}`
	req := httptest.NewRequest(http.MethodPost, "/access/users", strings.NewReader(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if len(service.created) != 1 {
		t.Fatalf("expected one user created, got %d", len(service.created))
	}
	if service.created[0].Role != access.RoleMember || !service.created[0].MFAEnabled {
		t.Fatalf("unexpected user: %+v", service.created[0])
	}
}

func TestCreateUserForbidden(t *testing.T) {
	service := &stubAccessService{err: access.ErrForbidden}
	router := newTestRouter(service)

	body := `{"actor_id":"viewer-1","id":"u-9","role":"member"}`
	req := httptest.NewRequest(http.MethodPost, "/access/users", strings.NewReader(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
}

func TestUpdateRole(t *testing.T) {
	service := &stubAccessService{}
	router := newTestRouter(service)

	req := httptest.NewRequest(http.MethodPost, "/access/users/u-3/role", strings.NewReader(`{"actor_id":"exec-1","role":"manager"}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if service.roleChanges["u-3"] != access.RoleManager {
		t.Fatalf("unexpected role changes: %+v", service.roleChanges)
	}
}

func TestUpdateRoleUnknownTarget(t *testing.T) {
	service := &stubAccessService{err: access.ErrNotFound}
	router := newTestRouter(service)

	req := httptest.NewRequest(http.MethodPost, "/access/users/ghost/role", strings.NewReader(`{"actor_id":"exec-1","role":"manager"}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestDeactivateUser(t *testing.T) {
	service := &stubAccessService{}
	router := newTestRouter(service)

	req := httptest.NewRequest(http.MethodPost, "/access/users/u-4/deactivate", strings.NewReader(`{"actor_id":"admin-1"}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rr.Code, rr.Body.String())
	}
	if len(service.deactivated) != 1 || service.deactivated[0] != "u-4" {
		t.Fatalf("unexpected deactivations: %v", service.deactivated)
	}
}

func TestSecurityScore(t *testing.T) {
	service := &stubAccessService{score: 85}
	router := newTestRouter(service)

	req := httptest.NewRequest(http.MethodGet, "/access/security/score", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"score":85`) {
		t.Fatalf("expected score in body: %s", rr.Body.String())
	}
}

func TestInternalErrorIsGeneric(t *testing.T) {
	service := &stubAccessService{err: context.DeadlineExceeded}
	router := newTestRouter(service)

	req := httptest.NewRequest(http.MethodGet, "/access/security/score", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	if strings.Contains(rr.Body.String(), "deadline") {
		t.Fatalf("internal detail leaked: %s", rr.Body.String())
	}
}
