// Package pipeline sequences staging, configuring, building and testing of a
// submission and turns the first terminal condition into a judgement.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/programme-lv/cmake-judge/api"
	"github.com/programme-lv/cmake-judge/internal/buildcfg"
	"github.com/programme-lv/cmake-judge/internal/cmake"
	"github.com/programme-lv/cmake-judge/internal/diagnose"
	"github.com/programme-lv/cmake-judge/internal/judgement"
	"github.com/programme-lv/cmake-judge/internal/workspace"
)

//go:generate mockgen -destination=mocks/mocks.go -package=mocks . Builder,Tester,Resolver

// Builder configures and builds a staged workspace.
type Builder interface {
	Configure(ctx context.Context, ws workspace.Workspace, resources string) (cmake.Outcome, error)
	Build(ctx context.Context, ws workspace.Workspace) (cmake.Outcome, error)
}

// Tester runs the reference tests against a built workspace.
type Tester interface {
	Run(ctx context.Context, resources string, suiteDir string, limits api.Limits) (api.Tally, error)
}

// Resolver turns a resource bundle location into a local directory.
type Resolver interface {
	Resolve(ctx context.Context, location string) (string, error)
}

// Explainer converts build-tool stderr into learner-facing messages.
type Explainer func(stderr string, exitCode int) diagnose.Explanation

// ErrSetup marks failures that happen before the build tool is invoked.
var ErrSetup = errors.New("setup failed")

type Controller struct {
	builder  Builder
	tester   Tester
	resolver Resolver
	explain  Explainer
	logger   *slog.Logger
}

type Option func(*Controller)

func WithResolver(r Resolver) Option { return func(c *Controller) { c.resolver = r } }

func WithExplainer(e Explainer) Option { return func(c *Controller) { c.explain = e } }

func WithLogger(l *slog.Logger) Option { return func(c *Controller) { c.logger = l } }

func New(builder Builder, tester Tester, opts ...Option) *Controller {
	c := &Controller{
		builder: builder,
		tester:  tester,
		explain: diagnose.Explain,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run judges one request and emits exactly one judgement to sink, whichever way
// the run ends. A non-nil error means the judgement could not be reached
// normally (setup or infrastructure failure) or could not be emitted.
func (c *Controller) Run(ctx context.Context, req api.EvalReq, sink judgement.Emitter) (err error) {
	if req.EvalUuid == "" {
		req.EvalUuid = uuid.NewString()
	}
	r := &run{
		Controller: c,
		req:        req,
		rec:        judgement.Acquire(sink, req.EvalUuid),
		sm:         newMachine(),
		logger:     c.logger.With("eval_uuid", req.EvalUuid),
	}

	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("evaluation panicked", "stage", r.sm.stage, "panic", p)
			r.abort()
			_ = r.rec.Reject(api.StatusInternalError)
			_ = r.rec.Release(ctx)
			panic(p)
		}
		if relErr := r.rec.Release(ctx); relErr != nil {
			err = errors.Join(err, relErr)
		}
	}()

	return r.execute(ctx)
}

type run struct {
	*Controller
	req    api.EvalReq
	rec    *judgement.Record
	sm     *machine
	logger *slog.Logger
}

func (r *run) execute(ctx context.Context) error {
	r.logger.Info("starting evaluation", "workdir", r.req.Workdir, "source", r.req.Source)

	ws, resources, err := r.stage(ctx)
	if err != nil {
		r.internal(err)
		return fmt.Errorf("%w: %w", ErrSetup, err)
	}

	if err := r.sm.advance(Configuring); err != nil {
		return r.internal(err)
	}
	r.logger.Info("configuring...")
	out, err := r.builder.Configure(ctx, ws, resources)
	if err != nil {
		return r.internal(err)
	}
	if !out.Success {
		return r.compileError(out)
	}

	if err := r.sm.advance(Building); err != nil {
		return r.internal(err)
	}
	r.logger.Info("building...")
	out, err = r.builder.Build(ctx, ws)
	if err != nil {
		return r.internal(err)
	}
	if !out.Success {
		return r.compileError(out)
	}

	if err := r.sm.advance(Testing); err != nil {
		return r.internal(err)
	}
	r.logger.Info("testing...")
	tally, err := r.tester.Run(ctx, resources, ws.TestDir, r.req.Limits())
	if err != nil {
		return r.internal(fmt.Errorf("failed to run tests: %w", err))
	}

	if err := r.sm.advance(Finalized); err != nil {
		return r.internal(err)
	}
	r.must(r.rec.SetTally(tally))
	r.must(r.rec.AddMessages(tally.Summary...))
	r.must(r.rec.SetStage(string(r.sm.last)))
	if !tally.AllCorrect() {
		r.logger.Info("wrong answer", "correct", tally.Correct, "total", tally.Total)
		r.must(r.rec.Reject(api.StatusWrongAnswer))
		return nil
	}
	r.logger.Info("accepted", "correct", tally.Correct, "total", tally.Total)
	r.must(r.rec.SetStatus(api.StatusAccepted))
	r.must(r.rec.SetAccepted(true))
	return nil
}

// stage loads the build configuration, prepares the workspace and locates the
// resource bundle.
func (r *run) stage(ctx context.Context) (workspace.Workspace, string, error) {
	cfg, err := buildcfg.Load(r.req.Workdir)
	if err != nil {
		return workspace.Workspace{}, "", err
	}
	ws, err := workspace.Prepare(r.req.Workdir, r.req.Source, cfg)
	if err != nil {
		return workspace.Workspace{}, "", err
	}
	r.logger.Debug("staged submission", "path", ws.SubmissionPath)

	resources := r.req.Resources
	if r.resolver != nil {
		resources, err = r.resolver.Resolve(ctx, r.req.Resources)
		if err != nil {
			return workspace.Workspace{}, "", fmt.Errorf("failed to resolve resources: %w", err)
		}
	}
	return ws, resources, nil
}

func (r *run) compileError(out cmake.Outcome) error {
	r.logger.Info("compilation failed", "step", out.Step, "exit_code", out.ExitCode)
	r.abort()
	ex := r.explain(out.Stderr, out.ExitCode)
	r.must(r.rec.Reject(api.StatusCompileError))
	r.must(r.rec.AddMessages(ex.Messages...))
	r.must(r.rec.AddAnnotations(ex.Annotations...))
	return nil
}

// internal records an infrastructure failure and returns err unchanged.
func (r *run) internal(err error) error {
	r.logger.Error("evaluation failed", "stage", r.sm.stage, "error", err)
	r.abort()
	r.must(r.rec.Reject(api.StatusInternalError))
	r.must(r.rec.AddMessages(api.Message{
		Description: err.Error(),
		Format:      api.FormatPlain,
		Type:        "internal",
	}))
	return err
}

func (r *run) abort() {
	if !IsTerminal(r.sm.stage) {
		_ = r.sm.advance(Aborted)
	}
	_ = r.rec.SetStage(string(r.sm.last))
}

// must panics on a record write error; the record is only released by Run.
func (r *run) must(err error) {
	if err != nil {
		panic(fmt.Errorf("judgement update: %w", err))
	}
}
