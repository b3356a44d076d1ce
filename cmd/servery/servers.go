package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	apihttp "github.com/melih/servery/internal/adapters/http"
	"github.com/melih/servery/internal/core/domain"
)

var (
	apiURL     string
	jsonOutput bool
)

var serversCmd = &cobra.Command{
	Use:   "servers",
	Short: "Manage servers through a running API",
}

var serversListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered servers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		servers, err := newClient().ListServers()
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), servers)
		}
		printServers(cmd.OutOrStdout(), servers)
		return nil
	},
}

var serversGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show one server",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := domain.ParseID(args[0])
		if err != nil {
			return err
		}
		server, err := newClient().GetServer(id)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), server)
		}
		printServers(cmd.OutOrStdout(), []domain.Server{server})
		return nil
	},
}

var serversCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Register a server and launch its container",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := createRequest(cmd)
		if err != nil {
			return err
		}
		id, err := newClient().CreateServer(req)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), id)
		return nil
	},
}

var serversStopCmd = &cobra.Command{
	Use:   "stop <id>",
	Short: "Stop the container of a server",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := domain.ParseID(args[0])
		if err != nil {
			return err
		}
		return newClient().StopServer(id)
	},
}

func init() {
	serversCmd.PersistentFlags().StringVar(&apiURL, "api", "",
		"API base URL (default: derived from listen_addr)")
	serversCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print JSON")

	serversCreateCmd.Flags().String("name", "", "server name")
	serversCreateCmd.Flags().String("version", "", "game version")
	serversCreateCmd.Flags().StringArray("mod", nil, "mod URL, repeatable")
	serversCreateCmd.Flags().Uint64("id", 0, "request a specific id")
	_ = serversCreateCmd.MarkFlagRequired("name")

	serversCmd.AddCommand(serversListCmd, serversGetCmd, serversCreateCmd, serversStopCmd)
}

func createRequest(cmd *cobra.Command) (domain.NewServer, error) {
	flags := cmd.Flags()
	name, _ := flags.GetString("name")
	version, _ := flags.GetString("version")
	mods, _ := flags.GetStringArray("mod")

	req := domain.NewServer{ServerFields: domain.ServerFields{
		Name:    name,
		Version: version,
		Mods:    mods,
	}}
	if req.Mods == nil {
		req.Mods = []string{}
	}
	if flags.Changed("id") {
		raw, _ := flags.GetUint64("id")
		id := domain.ID(raw)
		req.ID = &id
	}
	return req, req.Validate()
}

// Creates block until the image is pulled, hence the long client timeout.
func newClient() *apihttp.Client {
	return apihttp.NewClient(baseURL(apiURL, cfg.ListenAddr), 10*time.Minute)
}

// baseURL turns a listen address like ":3030" into a URL the CLI can dial.
func baseURL(explicit, listenAddr string) string {
	if explicit != "" {
		return explicit
	}
	host, port, err := net.SplitHostPort(listenAddr)
	if err != nil {
		return "http://" + listenAddr
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

func printServers(w io.Writer, servers []domain.Server) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tVERSION\tSTATUS\tMODS")
	for _, s := range servers {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n", s.ID, s.Name, dash(s.Version), s.Status, len(s.Mods))
	}
	tw.Flush()
}

func dash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
