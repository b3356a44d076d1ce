package main

import (
	"bytes"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/melih/servery/internal/core/domain"
)

func TestBaseURL(t *testing.T) {
	require.Equal(t, "http://127.0.0.1:3030", baseURL("", ":3030"))
	require.Equal(t, "http://127.0.0.1:3030", baseURL("", "0.0.0.0:3030"))
	require.Equal(t, "http://10.0.0.2:80", baseURL("", "10.0.0.2:80"))
	require.Equal(t, "http://[::1]:3030", baseURL("", "[::1]:3030"))
	require.Equal(t, "https://mc.example.com", baseURL("https://mc.example.com", ":3030"))
}

func TestCreateRequest(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.Flags().String("name", "", "")
	cmd.Flags().String("version", "", "")
	cmd.Flags().StringArray("mod", nil, "")
	cmd.Flags().Uint64("id", 0, "")
	require.NoError(t, cmd.ParseFlags([]string{
		"--name", "survival", "--version", "1.21",
		"--mod", "https://cdn.modrinth.com/a.jar", "--mod", "https://cdn.modrinth.com/b.jar",
		"--id", "0",
	}))

	req, err := createRequest(cmd)
	require.NoError(t, err)
	require.Equal(t, "survival", req.Name)
	require.Equal(t, "1.21", req.Version)
	require.Equal(t, []string{"https://cdn.modrinth.com/a.jar", "https://cdn.modrinth.com/b.jar"}, req.Mods)
	require.NotNil(t, req.ID)
	require.Equal(t, domain.ID(0), *req.ID)
}

func TestCreateRequest_Defaults(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.Flags().String("name", "", "")
	cmd.Flags().String("version", "", "")
	cmd.Flags().StringArray("mod", nil, "")
	cmd.Flags().Uint64("id", 0, "")
	require.NoError(t, cmd.ParseFlags([]string{"--name", "creative"}))

	req, err := createRequest(cmd)
	require.NoError(t, err)
	require.Nil(t, req.ID)
	require.Equal(t, []string{}, req.Mods)
}

func TestCreateRequest_RejectsRelativeMod(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.Flags().String("name", "", "")
	cmd.Flags().String("version", "", "")
	cmd.Flags().StringArray("mod", nil, "")
	cmd.Flags().Uint64("id", 0, "")
	require.NoError(t, cmd.ParseFlags([]string{"--name", "a", "--mod", "lithium.jar"}))

	_, err := createRequest(cmd)
	require.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestPrintServers(t *testing.T) {
	var buf bytes.Buffer
	printServers(&buf, []domain.Server{
		{ID: 0, ServerFields: domain.ServerFields{Name: "survival", Version: "1.21", Mods: []string{"https://x/a.jar"}}, Status: domain.StatusRunning},
		{ID: 1, ServerFields: domain.ServerFields{Name: "creative"}, Status: domain.StatusFailed},
	})
	require.Equal(t, ""+
		"ID  NAME      VERSION  STATUS   MODS\n"+
		"0   survival  1.21     running  1\n"+
		"1   creative  -        failed   0\n", buf.String())
}
