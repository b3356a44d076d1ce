// Package services holds the provisioning use cases that sit between the API
// adapters and the registry, template and runtime ports.
package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/melih/servery/internal/core/domain"
	"github.com/melih/servery/internal/core/ports"
	"github.com/melih/servery/internal/core/template"
)

// Outcomes reported to the ProvisionObserver.
const (
	OutcomeCreated       = "created"
	OutcomeInvalid       = "invalid"
	OutcomeDuplicate     = "duplicate"
	OutcomeStorageError  = "storage_error"
	OutcomeTemplateError = "template_error"
	OutcomeRuntimeError  = "runtime_error"
	OutcomeError         = "error"
)

// Provisioner turns create requests into registry records plus running
// container instances.
type Provisioner struct {
	appName   string
	registry  ports.ServerRegistry
	runtime   ports.ContainerRuntime
	templates ports.TemplateSource

	builder  ports.ImageBuilder
	events   ports.EventPublisher
	observer ports.ProvisionObserver
	tracer   trace.Tracer
	logger   *zap.Logger
	environ  func() []string
	now      func() time.Time
}

// Option configures optional collaborators of a Provisioner.
type Option func(*Provisioner)

// WithBuilder enables templates with a Build section.
func WithBuilder(b ports.ImageBuilder) Option {
	return func(p *Provisioner) { p.builder = b }
}

func WithEvents(e ports.EventPublisher) Option {
	return func(p *Provisioner) { p.events = e }
}

func WithObserver(o ports.ProvisionObserver) Option {
	return func(p *Provisioner) { p.observer = o }
}

func WithTracer(t trace.Tracer) Option {
	return func(p *Provisioner) { p.tracer = t }
}

func WithLogger(l *zap.Logger) Option {
	return func(p *Provisioner) { p.logger = l }
}

// WithEnviron replaces os.Environ as the source of template variables.
func WithEnviron(fn func() []string) Option {
	return func(p *Provisioner) { p.environ = fn }
}

// NewProvisioner wires the mandatory collaborators. Optional ones default to
// no-ops.
func NewProvisioner(appName string, registry ports.ServerRegistry, runtime ports.ContainerRuntime, templates ports.TemplateSource, opts ...Option) *Provisioner {
	p := &Provisioner{
		appName:   appName,
		registry:  registry,
		runtime:   runtime,
		templates: templates,
		events:    nopEvents{},
		observer:  nopObserver{},
		tracer:    noop.NewTracerProvider().Tracer("servery"),
		logger:    zap.NewNop(),
		environ:   os.Environ,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With(zap.String("component", "provisioner"))
	return p
}

// List returns every registered server. A listed server is not guaranteed
// to have a running instance.
func (p *Provisioner) List(ctx context.Context) ([]domain.Server, error) {
	return p.registry.All(ctx)
}

func (p *Provisioner) Get(ctx context.Context, id domain.ID) (domain.Server, error) {
	return p.registry.ByID(ctx, id)
}

// Create records the server, renders the template for it and launches its
// instance. The id is returned only once the instance has started.
//
// Any failure after the record is inserted leaves the record in place with
// status failed; nothing is rolled back and nothing is retried.
func (p *Provisioner) Create(ctx context.Context, req domain.NewServer) (id domain.ID, err error) {
	start := p.now()
	ctx, span := p.tracer.Start(ctx, "provision.create",
		trace.WithAttributes(attribute.String("server.name", req.Name)))
	defer func() {
		p.observer.ObserveProvision(Outcome(err), p.now().Sub(start))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if err := req.Validate(); err != nil {
		return 0, err
	}

	rec, err := p.insert(ctx, req)
	if err != nil {
		return 0, err
	}
	instance := domain.InstanceName(p.appName, rec.ID)
	span.SetAttributes(attribute.String("server.id", rec.ID.String()), attribute.String("server.instance", instance))
	log := p.logger.With(zap.Stringer("server_id", rec.ID), zap.String("instance", instance))
	p.publish(ctx, domain.EventCreated, rec, instance, nil)

	if err := p.launch(ctx, rec, instance); err != nil {
		// Orphan window: the record exists but no instance runs for it.
		log.Error("launch failed, record kept as failed", zap.Error(err))
		p.transition(ctx, rec, instance, domain.StatusFailed, domain.EventFailed, err, log)
		return 0, err
	}

	p.transition(ctx, rec, instance, domain.StatusRunning, domain.EventRunning, nil, log)
	log.Info("server provisioned", zap.String("name", rec.Name), zap.String("version", rec.Version))
	return rec.ID, nil
}

func (p *Provisioner) insert(ctx context.Context, req domain.NewServer) (domain.Server, error) {
	ctx, span := p.tracer.Start(ctx, "registry.insert")
	defer span.End()
	return p.registry.Insert(ctx, req.ID, req.ServerFields)
}

// launch runs steps 3 to 5: load and render the template, build the image
// when asked to, then create and start the instance.
func (p *Provisioner) launch(ctx context.Context, rec domain.Server, instance string) error {
	spec, err := p.render(ctx, rec, instance)
	if err != nil {
		return err
	}

	if spec.Build != nil {
		if p.builder == nil {
			return &domain.TemplateError{Err: errors.New("template has a Build section but no image builder is configured")}
		}
		bctx, span := p.tracer.Start(ctx, "image.build")
		image, err := p.builder.BuildImage(bctx, *spec.Build, strings.ToLower(instance)+":latest")
		span.End()
		if err != nil {
			return asRuntimeError("build", instance, err)
		}
		spec.Config.Image = image
	}

	rctx, span := p.tracer.Start(ctx, "runtime.create_and_start")
	defer span.End()
	if _, err := p.runtime.CreateAndStart(rctx, instance, spec); err != nil {
		return asRuntimeError("create", instance, err)
	}
	return nil
}

func (p *Provisioner) render(ctx context.Context, rec domain.Server, instance string) (domain.LaunchSpec, error) {
	ctx, span := p.tracer.Start(ctx, "template.render")
	defer span.End()

	doc, err := p.templates.Load(ctx)
	if err != nil {
		var tmplErr *domain.TemplateError
		if errors.As(err, &tmplErr) {
			return domain.LaunchSpec{}, err
		}
		return domain.LaunchSpec{}, &domain.TemplateError{Err: fmt.Errorf("load template: %w", err)}
	}

	vars := template.FromEnviron(p.environ()).Overlay(map[string]string{
		template.VarApp:      p.appName,
		template.VarID:       rec.ID.String(),
		template.VarName:     rec.Name,
		template.VarInstance: instance,
		template.VarVersion:  rec.Version,
		template.VarMods:     strings.Join(rec.Mods, ","),
	})
	spec, err := template.Load(doc, vars)
	if err != nil {
		return domain.LaunchSpec{}, err
	}

	if spec.Config.Labels == nil {
		spec.Config.Labels = map[string]string{}
	}
	spec.Config.Labels[domain.LabelApp] = p.appName
	spec.Config.Labels[domain.LabelServerID] = rec.ID.String()
	return spec, nil
}

// transition records a lifecycle change and announces it. It runs detached
// from ctx so a cancelled request still gets its outcome recorded.
func (p *Provisioner) transition(ctx context.Context, rec domain.Server, instance string, status domain.Status, event string, cause error, log *zap.Logger) {
	ctx = context.WithoutCancel(ctx)
	if err := p.registry.SetStatus(ctx, rec.ID, status); err != nil {
		log.Error("record status", zap.String("status", string(status)), zap.Error(err))
	}
	p.publish(ctx, event, rec, instance, cause)
}

func (p *Provisioner) publish(ctx context.Context, event string, rec domain.Server, instance string, cause error) {
	ev := domain.Event{
		Event:    event,
		ID:       rec.ID,
		Name:     rec.Name,
		Instance: instance,
		Time:     p.now().UTC(),
	}
	if cause != nil {
		ev.Error = cause.Error()
	}
	if err := p.events.Publish(context.WithoutCancel(ctx), ev); err != nil {
		p.logger.Warn("publish event", zap.String("event", event), zap.Stringer("server_id", rec.ID), zap.Error(err))
	}
}

// Instances lists the runtime instances belonging to this app.
func (p *Provisioner) Instances(ctx context.Context) ([]domain.Instance, error) {
	instances, err := p.runtime.ListInstances(ctx)
	if err != nil {
		return nil, asRuntimeError("list", p.appName, err)
	}
	return instances, nil
}

// Stop stops the instance of server id and records it as stopped.
func (p *Provisioner) Stop(ctx context.Context, id domain.ID) error {
	rec, err := p.registry.ByID(ctx, id)
	if err != nil {
		return err
	}
	instance := domain.InstanceName(p.appName, rec.ID)
	if err := p.runtime.StopInstance(ctx, instance); err != nil {
		return asRuntimeError("stop", instance, err)
	}
	log := p.logger.With(zap.Stringer("server_id", rec.ID), zap.String("instance", instance))
	p.transition(ctx, rec, instance, domain.StatusStopped, domain.EventStopped, nil, log)
	return nil
}

// Logs streams the instance logs of server id. The caller closes the reader.
func (p *Provisioner) Logs(ctx context.Context, id domain.ID) (io.ReadCloser, error) {
	rec, err := p.registry.ByID(ctx, id)
	if err != nil {
		return nil, err
	}
	instance := domain.InstanceName(p.appName, rec.ID)
	logs, err := p.runtime.InstanceLogs(ctx, instance)
	if err != nil {
		return nil, asRuntimeError("logs", instance, err)
	}
	return logs, nil
}

// Outcome classifies a Create result for metrics.
func Outcome(err error) string {
	var (
		dup     *domain.DuplicateIdentityError
		storage *domain.StorageError
		tmpl    *domain.TemplateError
		rt      *domain.RuntimeError
	)
	switch {
	case err == nil:
		return OutcomeCreated
	case errors.Is(err, domain.ErrInvalidRequest):
		return OutcomeInvalid
	case errors.As(err, &dup):
		return OutcomeDuplicate
	case errors.As(err, &tmpl):
		return OutcomeTemplateError
	case errors.As(err, &rt):
		return OutcomeRuntimeError
	case errors.As(err, &storage):
		return OutcomeStorageError
	default:
		return OutcomeError
	}
}

func asRuntimeError(op, instance string, err error) error {
	var rt *domain.RuntimeError
	if errors.As(err, &rt) {
		return err
	}
	return &domain.RuntimeError{Op: op, Instance: instance, Err: err}
}

type nopEvents struct{}

func (nopEvents) Publish(context.Context, domain.Event) error { return nil }

type nopObserver struct{}

func (nopObserver) ObserveProvision(string, time.Duration) {}

var _ ports.ServerService = (*Provisioner)(nil)
