package domain

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"unicode"
)

// ID identifies a server record. It is assigned once and never changes.
type ID uint64

func (id ID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// ParseID parses the decimal form produced by ID.String.
func ParseID(s string) (ID, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid server id %q", ErrInvalidRequest, s)
	}
	return ID(n), nil
}

// FirstFreeID returns the smallest ID not present in used.
func FirstFreeID(used map[ID]struct{}) ID {
	var id ID
	for {
		if _, taken := used[id]; !taken {
			return id
		}
		id++
	}
}

// Status is the lifecycle state of a server record.
type Status string

const (
	StatusPending Status = "pending" // recorded, container not launched yet
	StatusRunning Status = "running"
	StatusFailed  Status = "failed" // launch failed after the record was persisted
	StatusStopped Status = "stopped"
)

// Valid reports whether s is a known lifecycle state.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusFailed, StatusStopped:
		return true
	}
	return false
}

// ServerFields are the caller-supplied attributes of a server.
type ServerFields struct {
	Name    string   `json:"name"`
	Version string   `json:"version,omitempty"`
	Mods    []string `json:"mods"`
}

// Server is a provisioned workload as stored in the registry.
type Server struct {
	ID ID `json:"id"`
	ServerFields
	Status Status `json:"status"`
}

// NewServer is the payload of a create request. ID is optional; when nil
// the registry picks one.
type NewServer struct {
	ID *ID `json:"id,omitempty"`
	ServerFields
}

// Validate rejects payloads the registry must never see.
//
// Fields are substituted verbatim into quoted template strings, so quotes,
// backslashes and control characters are refused.
func (n NewServer) Validate() error {
	if strings.TrimSpace(n.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidRequest)
	}
	if err := templateSafe("name", n.Name); err != nil {
		return err
	}
	if err := templateSafe("version", n.Version); err != nil {
		return err
	}
	for _, m := range n.Mods {
		u, err := url.Parse(m)
		if err != nil || u.Scheme == "" {
			return fmt.Errorf("%w: mod %q is not an absolute URI", ErrInvalidRequest, m)
		}
		if err := templateSafe("mod", m); err != nil {
			return err
		}
	}
	return nil
}

func templateSafe(field, v string) error {
	for _, r := range v {
		if r == '"' || r == '\\' || unicode.IsControl(r) {
			return fmt.Errorf("%w: %s %q contains %q", ErrInvalidRequest, field, v, r)
		}
	}
	return nil
}

// InstanceName derives the container name for a server owned by app.
func InstanceName(app string, id ID) string {
	return app + "_" + id.String()
}

// Clone returns a copy that shares no slices with s.
func (s Server) Clone() Server {
	out := s
	if s.Mods != nil {
		out.Mods = make([]string, len(s.Mods))
		copy(out.Mods, s.Mods)
	}
	return out
}
