package docker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/docker/docker/pkg/stdcopy"
	"go.uber.org/zap"

	"github.com/melih/servery/internal/core/domain"
)

// PullPolicy decides when an image is pulled before an instance is created.
type PullPolicy string

const (
	PullMissing PullPolicy = "missing"
	PullAlways  PullPolicy = "always"
	PullNever   PullPolicy = "never"
)

// Valid reports whether p is a known policy.
func (p PullPolicy) Valid() bool {
	switch p {
	case PullMissing, PullAlways, PullNever:
		return true
	}
	return false
}

// Options configures an Adapter.
type Options struct {
	// AppName scopes ListInstances to containers labeled with it.
	AppName string
	// Host overrides DOCKER_HOST when set.
	Host        string
	PullPolicy  PullPolicy
	StopTimeout time.Duration
	Logger      *zap.Logger
}

// Adapter implements ports.ContainerRuntime using Docker SDK
type Adapter struct {
	cli         *client.Client
	app         string
	pull        PullPolicy
	stopTimeout time.Duration
	logger      *zap.Logger
}

// NewAdapter creates a new Docker adapter instance
func NewAdapter(opts Options) (*Adapter, error) {
	clientOpts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if opts.Host != "" {
		clientOpts = append(clientOpts, client.WithHost(opts.Host))
	}
	cli, err := client.NewClientWithOpts(clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}

	if opts.PullPolicy == "" {
		opts.PullPolicy = PullMissing
	}
	if !opts.PullPolicy.Valid() {
		return nil, fmt.Errorf("unknown pull policy %q", opts.PullPolicy)
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = 10 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Adapter{
		cli:         cli,
		app:         opts.AppName,
		pull:        opts.PullPolicy,
		stopTimeout: opts.StopTimeout,
		logger:      opts.Logger.With(zap.String("component", "docker")),
	}, nil
}

// Client exposes the underlying client so the image builder can share it.
func (a *Adapter) Client() *client.Client {
	return a.cli
}

func (a *Adapter) Close() error {
	return a.cli.Close()
}

// CreateAndStart makes sure the image is present, creates a container named
// name from spec and starts it.
func (a *Adapter) CreateAndStart(ctx context.Context, name string, spec domain.LaunchSpec) (string, error) {
	if spec.Config == nil || spec.Config.Image == "" {
		return "", errors.New("launch spec has no image")
	}

	// 1. Image Pull (Ensure image exists)
	if err := a.ensureImage(ctx, spec.Config.Image); err != nil {
		return "", err
	}

	// 2. Create Container
	resp, err := a.cli.ContainerCreate(ctx, spec.Config, spec.Host, nil, nil, name)
	if err != nil {
		return "", fmt.Errorf("failed to create container: %w", err)
	}
	for _, w := range resp.Warnings {
		a.logger.Warn("container create warning", zap.String("instance", name), zap.String("warning", w))
	}

	// 3. Start Container
	if err := a.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return "", fmt.Errorf("failed to start container: %w", err)
	}

	a.logger.Info("instance started", zap.String("instance", name), zap.String("container_id", shortID(resp.ID)))
	return resp.ID, nil
}

func (a *Adapter) ensureImage(ctx context.Context, image string) error {
	var inspectErr error
	if a.pull == PullMissing {
		_, _, inspectErr = a.cli.ImageInspectWithRaw(ctx, image)
	}
	pull, err := needsPull(a.pull, inspectErr)
	if err != nil {
		return fmt.Errorf("failed to inspect image: %w", err)
	}
	if !pull {
		return nil
	}

	a.logger.Info("pulling image", zap.String("image", image))
	reader, err := a.cli.ImagePull(ctx, image, types.ImagePullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image: %w", err)
	}
	defer reader.Close()

	// The pull only finishes once the progress stream is drained; errors are
	// reported inside the stream, not by ImagePull.
	if err := jsonmessage.DisplayJSONMessagesStream(reader, io.Discard, 0, false, nil); err != nil {
		return fmt.Errorf("failed to pull image: %w", err)
	}
	return nil
}

// needsPull applies policy to the result of inspecting the image locally.
func needsPull(policy PullPolicy, inspectErr error) (bool, error) {
	switch policy {
	case PullNever:
		return false, nil
	case PullAlways:
		return true, nil
	}
	if inspectErr == nil {
		return false, nil
	}
	if errdefs.IsNotFound(inspectErr) {
		return true, nil
	}
	return false, inspectErr
}

// ListInstances returns every container, running or not, labeled for this app.
func (a *Adapter) ListInstances(ctx context.Context) ([]domain.Instance, error) {
	containers, err := a.cli.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("label", domain.LabelApp+"="+a.app)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}

	result := make([]domain.Instance, 0, len(containers))
	for _, c := range containers {
		result = append(result, toInstance(c))
	}
	return result, nil
}

func toInstance(c types.Container) domain.Instance {
	// Use the first name if available, remove slash
	name := ""
	if len(c.Names) > 0 {
		name = strings.TrimPrefix(c.Names[0], "/")
	}

	inst := domain.Instance{
		ID:       shortID(c.ID),
		Name:     name,
		Image:    c.Image,
		Status:   c.Status,
		State:    c.State,
		ServerID: c.Labels[domain.LabelServerID],
	}

	if c.NetworkSettings != nil {
		networks := make([]string, 0, len(c.NetworkSettings.Networks))
		for n := range c.NetworkSettings.Networks {
			networks = append(networks, n)
		}
		sort.Strings(networks)
		for _, n := range networks {
			if ep := c.NetworkSettings.Networks[n]; ep != nil && ep.IPAddress != "" {
				inst.IPAddress = ep.IPAddress
				break
			}
		}
	}
	return inst
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

// StopInstance stops a running container, giving it the configured grace period.
func (a *Adapter) StopInstance(ctx context.Context, name string) error {
	secs := int(a.stopTimeout.Seconds())
	ctx, cancel := context.WithTimeout(ctx, a.stopTimeout+5*time.Second)
	defer cancel()
	if err := a.cli.ContainerStop(ctx, name, container.StopOptions{Timeout: &secs}); err != nil {
		return fmt.Errorf("failed to stop container: %w", err)
	}
	return nil
}

// InstanceLogs returns the stdout and stderr of an instance as plain text.
func (a *Adapter) InstanceLogs(ctx context.Context, name string) (io.ReadCloser, error) {
	info, err := a.cli.ContainerInspect(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect container: %w", err)
	}

	logs, err := a.cli.ContainerLogs(ctx, name, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Timestamps: true,
		Tail:       "1000",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read container logs: %w", err)
	}

	// Without a TTY docker multiplexes both streams behind frame headers.
	if info.Config != nil && info.Config.Tty {
		return logs, nil
	}
	return demux(logs), nil
}

func demux(src io.ReadCloser) io.ReadCloser {
	pr, pw := io.Pipe()
	go func() {
		_, err := stdcopy.StdCopy(pw, pw, src)
		src.Close()
		pw.CloseWithError(err)
	}()
	return pr
}
