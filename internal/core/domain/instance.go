package domain

// Instance is a container known to the runtime (Docker, K8s, etc.)
type Instance struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Image     string `json:"image"`
	Status    string `json:"status"`
	State     string `json:"state"` // running, exited, etc.
	IPAddress string `json:"ip_address,omitempty"`
	ServerID  string `json:"server_id,omitempty"`
}

// Labels stamped on every instance so the runtime can be queried per app.
const (
	LabelApp      = "servery.app"
	LabelServerID = "servery.server-id"
)
