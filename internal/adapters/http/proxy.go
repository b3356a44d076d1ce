package http

import (
	"fmt"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"go.uber.org/zap"

	"github.com/melih/servery/internal/core/domain"
	"github.com/melih/servery/internal/core/ports"
)

// ProxyHandler manages reverse proxying for subdomains.
type ProxyHandler struct {
	service    ports.ServerService
	domain     string
	targetPort int
	logger     *zap.Logger
}

// NewProxyHandler forwards <server id>.<domain> to the server's instance on
// targetPort.
func NewProxyHandler(service ports.ServerService, domain string, targetPort int, logger *zap.Logger) *ProxyHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProxyHandler{
		service:    service,
		domain:     strings.ToLower(strings.TrimPrefix(domain, ".")),
		targetPort: targetPort,
		logger:     logger.With(zap.String("component", "proxy")),
	}
}

// serverFromHost extracts the server id from "<id>.<domain>" in the form
// instances are labeled with. Any other host, including the bare domain and
// deeper subdomains, is not proxied.
func (h *ProxyHandler) serverFromHost(host string) (string, bool) {
	host = strings.ToLower(host)
	if h.domain == "" || !strings.HasSuffix(host, "."+h.domain) {
		return "", false
	}
	sub := strings.TrimSuffix(host, "."+h.domain)
	if sub == "" || strings.Contains(sub, ".") {
		return "", false
	}
	id, err := domain.ParseID(sub)
	if err != nil {
		return "", false
	}
	// instance labels carry the canonical form, so "007" must match "7"
	return id.String(), true
}

// ProxyRequest intercepts requests to subdomains (e.g., 3.servers.localhost)
// and routes them to the corresponding instance's internal IP.
func (h *ProxyHandler) ProxyRequest(c *fiber.Ctx) error {
	// 1. Extract Subdomain
	serverID, ok := h.serverFromHost(c.Hostname())
	if !ok {
		return c.Next()
	}

	// 2. Find the running instance of that server
	instances, err := h.service.Instances(c.UserContext())
	if err != nil {
		h.logger.Error("list instances", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).SendString("Failed to list instances")
	}

	var targetIP string
	for _, inst := range instances {
		// Only proxy to running containers
		if inst.ServerID == serverID && inst.State == "running" {
			targetIP = inst.IPAddress
			break
		}
	}

	if targetIP == "" {
		return c.Status(fiber.StatusNotFound).SendString(fmt.Sprintf("Server '%s' not found or not running", serverID))
	}

	// 3. Proxy the Request
	remote := &url.URL{Scheme: "http", Host: net.JoinHostPort(targetIP, strconv.Itoa(h.targetPort))}
	proxy := httputil.NewSingleHostReverseProxy(remote)

	// Rewrite Host header to target so the application inside does not reject
	// the public hostname.
	originalDirector := proxy.Director
	proxy.Director = func(req *http.Request) {
		originalDirector(req)
		req.Host = remote.Host
	}

	// Return standard BadGateway if connectivity fails
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		h.logger.Warn("proxy upstream failed", zap.String("server_id", serverID), zap.String("target", remote.Host), zap.Error(err))
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream unavailable"))
	}

	// Fiber <-> Net/HTTP Adaptor
	return adaptor.HTTPHandler(proxy)(c)
}
