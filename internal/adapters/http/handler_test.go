package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/melih/servery/internal/core/domain"
)

// fakeService is an in-memory ports.ServerService.
type fakeService struct {
	mu        sync.Mutex
	servers   []domain.Server
	instances []domain.Instance
	createErr error
	listErr   error
	stopped   []domain.ID
	logs      string
	created   []domain.NewServer
}

func (f *fakeService) List(context.Context) ([]domain.Server, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Server(nil), f.servers...), f.listErr
}

func (f *fakeService) Get(_ context.Context, id domain.ID) (domain.Server, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.servers {
		if s.ID == id {
			return s, nil
		}
	}
	return domain.Server{}, domain.ErrNotFound
}

func (f *fakeService) Create(_ context.Context, req domain.NewServer) (domain.ID, error) {
	if err := req.Validate(); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, req)
	if f.createErr != nil {
		return 0, f.createErr
	}
	id := domain.ID(len(f.servers))
	if req.ID != nil {
		id = *req.ID
	}
	f.servers = append(f.servers, domain.Server{ID: id, ServerFields: req.ServerFields, Status: domain.StatusRunning})
	return id, nil
}

func (f *fakeService) Stop(ctx context.Context, id domain.ID) error {
	if _, err := f.Get(ctx, id); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = append(f.stopped, id)
	return nil
}

func (f *fakeService) Logs(ctx context.Context, id domain.ID) (io.ReadCloser, error) {
	if _, err := f.Get(ctx, id); err != nil {
		return nil, err
	}
	return io.NopCloser(strings.NewReader(f.logs)), nil
}

func (f *fakeService) Instances(context.Context) ([]domain.Instance, error) {
	return f.instances, f.listErr
}

type recordedRequest struct {
	method, route string
	code          int
}

type fakeMetrics struct {
	mu       sync.Mutex
	requests []recordedRequest
}

func (m *fakeMetrics) ObserveRequest(method, route string, code int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, recordedRequest{method, route, code})
}

func (m *fakeMetrics) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "servery_up 1\n")
	})
}

func do(t *testing.T, app *fiber.App, method, path, body string) (int, string) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(out)
}

func TestCreateServer(t *testing.T) {
	svc := &fakeService{}
	app := NewRouter(svc, RouterOptions{})

	code, body := do(t, app, fiber.MethodPost, "/api/v1/servers",
		`{"name":"survival","version":"1.20.4","mods":["https://cdn.modrinth.com/lithium.jar"]}`)
	require.Equal(t, fiber.StatusCreated, code)
	require.JSONEq(t, `{"id":0}`, body)

	require.Len(t, svc.created, 1)
	require.Nil(t, svc.created[0].ID)
	require.Equal(t, "survival", svc.created[0].Name)
	require.Equal(t, []string{"https://cdn.modrinth.com/lithium.jar"}, svc.created[0].Mods)
}

func TestCreateServer_CallerID(t *testing.T) {
	svc := &fakeService{}
	app := NewRouter(svc, RouterOptions{})

	code, body := do(t, app, fiber.MethodPost, "/api/v1/servers", `{"id":42,"name":"creative","mods":[]}`)
	require.Equal(t, fiber.StatusCreated, code)
	require.JSONEq(t, `{"id":42}`, body)
}

func TestCreateServer_Errors(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		createErr error
		wantCode  int
		wantError string
	}{
		{"malformed json", `{"name":`, nil, fiber.StatusBadRequest, "Invalid request body"},
		{"wrong field type", `{"name":5}`, nil, fiber.StatusBadRequest, "Invalid request body"},
		{"blank name", `{"name":"  ","mods":[]}`, nil, fiber.StatusBadRequest, "invalid request: name is required"},
		{"relative mod", `{"name":"a","mods":["lithium.jar"]}`, nil, fiber.StatusBadRequest, `invalid request: mod "lithium.jar" is not an absolute URI`},
		{"duplicate", `{"id":1,"name":"a","mods":[]}`, &domain.DuplicateIdentityError{ID: 1}, fiber.StatusConflict, "server id 1 already exists"},
		{"runtime failure hidden", `{"name":"a","mods":[]}`,
			&domain.RuntimeError{Op: "create", Instance: "servery_0", Err: errors.New("docker socket: permission denied")},
			fiber.StatusInternalServerError, "internal error"},
		{"storage failure hidden", `{"name":"a","mods":[]}`,
			&domain.StorageError{Op: "insert", Err: errors.New("disk full")},
			fiber.StatusInternalServerError, "internal error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := NewRouter(&fakeService{createErr: tt.createErr}, RouterOptions{})
			code, body := do(t, app, fiber.MethodPost, "/api/v1/servers", tt.body)
			require.Equal(t, tt.wantCode, code)

			var payload map[string]string
			require.NoError(t, json.Unmarshal([]byte(body), &payload))
			require.Equal(t, tt.wantError, payload["error"])
		})
	}
}

func TestListServers(t *testing.T) {
	svc := &fakeService{servers: []domain.Server{
		{ID: 0, ServerFields: domain.ServerFields{Name: "a", Mods: []string{}}, Status: domain.StatusRunning},
		{ID: 1, ServerFields: domain.ServerFields{Name: "b", Version: "1.21", Mods: []string{"https://x/y.jar"}}, Status: domain.StatusFailed},
	}}
	app := NewRouter(svc, RouterOptions{})

	code, body := do(t, app, fiber.MethodGet, "/api/v1/servers", "")
	require.Equal(t, fiber.StatusOK, code)
	require.JSONEq(t, `[
		{"id":0,"name":"a","mods":[],"status":"running"},
		{"id":1,"name":"b","version":"1.21","mods":["https://x/y.jar"],"status":"failed"}
	]`, body)
}

func TestListServers_Failure(t *testing.T) {
	app := NewRouter(&fakeService{listErr: &domain.StorageError{Op: "read", Err: errors.New("corrupt")}}, RouterOptions{})
	code, body := do(t, app, fiber.MethodGet, "/api/v1/servers", "")
	require.Equal(t, fiber.StatusInternalServerError, code)
	require.NotContains(t, body, "corrupt")
}

func TestGetServer(t *testing.T) {
	svc := &fakeService{servers: []domain.Server{{ID: 5, ServerFields: domain.ServerFields{Name: "e", Mods: []string{}}, Status: domain.StatusPending}}}
	app := NewRouter(svc, RouterOptions{})

	code, body := do(t, app, fiber.MethodGet, "/api/v1/servers/5", "")
	require.Equal(t, fiber.StatusOK, code)
	require.JSONEq(t, `{"id":5,"name":"e","mods":[],"status":"pending"}`, body)

	code, _ = do(t, app, fiber.MethodGet, "/api/v1/servers/6", "")
	require.Equal(t, fiber.StatusNotFound, code)

	code, _ = do(t, app, fiber.MethodGet, "/api/v1/servers/abc", "")
	require.Equal(t, fiber.StatusBadRequest, code)
}

func TestStopServer(t *testing.T) {
	svc := &fakeService{servers: []domain.Server{{ID: 2, ServerFields: domain.ServerFields{Name: "c"}}}}
	app := NewRouter(svc, RouterOptions{})

	code, body := do(t, app, fiber.MethodPost, "/api/v1/servers/2/stop", "")
	require.Equal(t, fiber.StatusOK, code)
	require.JSONEq(t, `{"id":2,"status":"stopped"}`, body)
	require.Equal(t, []domain.ID{2}, svc.stopped)

	code, _ = do(t, app, fiber.MethodPost, "/api/v1/servers/9/stop", "")
	require.Equal(t, fiber.StatusNotFound, code)
}

func TestGetServerLogs(t *testing.T) {
	svc := &fakeService{
		servers: []domain.Server{{ID: 0, ServerFields: domain.ServerFields{Name: "a"}}},
		logs:    "[Server thread/INFO]: Done (3.2s)!\n",
	}
	app := NewRouter(svc, RouterOptions{})

	req := httptest.NewRequest(fiber.MethodGet, "/api/v1/servers/0/logs", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.True(t, strings.HasPrefix(resp.Header.Get(fiber.HeaderContentType), fiber.MIMETextPlain))
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, svc.logs, string(body))
}

func TestListInstances(t *testing.T) {
	svc := &fakeService{instances: []domain.Instance{{ID: "abc", Name: "servery_0", State: "running", ServerID: "0"}}}
	app := NewRouter(svc, RouterOptions{})

	code, body := do(t, app, fiber.MethodGet, "/api/v1/instances", "")
	require.Equal(t, fiber.StatusOK, code)
	require.JSONEq(t, `[{"id":"abc","name":"servery_0","image":"","status":"","state":"running","server_id":"0"}]`, body)
}

func TestRouter_RequestIDAndMetrics(t *testing.T) {
	metrics := &fakeMetrics{}
	app := NewRouter(&fakeService{}, RouterOptions{Metrics: metrics})

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/api/v1/servers", nil), -1)
	require.NoError(t, err)
	resp.Body.Close()
	assert.NotEmpty(t, resp.Header.Get(fiber.HeaderXRequestID))

	code, body := do(t, app, fiber.MethodGet, "/metrics", "")
	require.Equal(t, fiber.StatusOK, code)
	require.Equal(t, "servery_up 1\n", body)

	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	require.NotEmpty(t, metrics.requests)
	first := metrics.requests[0]
	require.Equal(t, fiber.MethodGet, first.method)
	require.True(t, strings.HasPrefix(first.route, "/api/v1/servers"), first.route)
	require.Equal(t, fiber.StatusOK, first.code)
}

func TestRouter_NoMetricsRouteWhenDisabled(t *testing.T) {
	app := NewRouter(&fakeService{}, RouterOptions{})
	code, _ := do(t, app, fiber.MethodGet, "/metrics", "")
	require.Equal(t, fiber.StatusNotFound, code)
}

func TestStatusFor(t *testing.T) {
	require.Equal(t, fiber.StatusOK, statusFor(nil))
	require.Equal(t, fiber.StatusBadRequest, statusFor(fmt.Errorf("wrap: %w", domain.ErrInvalidRequest)))
	require.Equal(t, fiber.StatusNotFound, statusFor(domain.ErrNotFound))
	require.Equal(t, fiber.StatusConflict, statusFor(fmt.Errorf("insert: %w", &domain.DuplicateIdentityError{ID: 3})))
	require.Equal(t, fiber.StatusMethodNotAllowed, statusFor(fiber.ErrMethodNotAllowed))
	require.Equal(t, fiber.StatusInternalServerError, statusFor(&domain.TemplateError{Err: errors.New("bad toml")}))
	require.Equal(t, fiber.StatusInternalServerError, statusFor(context.DeadlineExceeded))
}

func TestResponseStatus_UsesErrorCode(t *testing.T) {
	app := fiber.New()
	var seen int
	app.Use(func(c *fiber.Ctx) error {
		err := c.Next()
		seen = responseStatus(c, err)
		return err
	})
	app.Get("/teapot", func(*fiber.Ctx) error { return fiber.ErrTeapot })
	app.Get("/boom", func(*fiber.Ctx) error { return errors.New("boom") })

	_, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/teapot", nil), int(time.Second.Milliseconds()))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusTeapot, seen)

	_, err = app.Test(httptest.NewRequest(fiber.MethodGet, "/boom", nil), int(time.Second.Milliseconds()))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusInternalServerError, seen)
}
