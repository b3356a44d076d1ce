package http

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/melih/servery/internal/core/domain"
)

func startAPI(t *testing.T, svc *fakeService) *Client {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	app := NewRouter(svc, RouterOptions{})
	go func() { _ = app.Listener(ln) }()
	t.Cleanup(func() { _ = app.Shutdown() })

	return NewClient("http://"+ln.Addr().String()+"/", 5*time.Second)
}

func TestClient_RoundTrip(t *testing.T) {
	client := startAPI(t, &fakeService{})

	id, err := client.CreateServer(domain.NewServer{ServerFields: domain.ServerFields{
		Name: "survival", Version: "1.20.4", Mods: []string{"https://cdn.modrinth.com/lithium.jar"},
	}})
	require.NoError(t, err)
	require.Equal(t, domain.ID(0), id)

	server, err := client.GetServer(id)
	require.NoError(t, err)
	require.Equal(t, "survival", server.Name)
	require.Equal(t, domain.StatusRunning, server.Status)

	servers, err := client.ListServers()
	require.NoError(t, err)
	require.Len(t, servers, 1)

	require.NoError(t, client.StopServer(id))
}

func TestClient_APIErrors(t *testing.T) {
	client := startAPI(t, &fakeService{createErr: &domain.DuplicateIdentityError{ID: 1}})

	one := domain.ID(1)
	_, err := client.CreateServer(domain.NewServer{ID: &one, ServerFields: domain.ServerFields{Name: "a"}})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, 409, apiErr.Status)
	require.Equal(t, "server id 1 already exists", apiErr.Message)

	_, err = client.GetServer(7)
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, 404, apiErr.Status)
}

func TestClient_Unreachable(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", time.Second)
	_, err := client.ListServers()
	require.Error(t, err)
	var apiErr *APIError
	require.False(t, errors.As(err, &apiErr))
}
