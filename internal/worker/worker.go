// Package worker judges requests arriving on a NATS subject.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/programme-lv/cmake-judge/api"
	"github.com/programme-lv/cmake-judge/internal/gatherer/natsgath"
	"github.com/programme-lv/cmake-judge/internal/judgement"
	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/errgroup"
)

// QueueGroup is the group every judge joins so each request is handled once.
const QueueGroup = "cmake-judge"

// how long a draining subscription is polled for leftover messages
const drainPoll = 500 * time.Millisecond

var ErrWorkdirBusy = errors.New("workdir is used by another evaluation")

// Runner is satisfied by *pipeline.Controller.
type Runner interface {
	Run(ctx context.Context, req api.EvalReq, sink judgement.Emitter) error
}

type Config struct {
	Subject string
	// used when a request carries no reply subject
	ResultSubject string
	Parallel      int
}

type Worker struct {
	pub    natsgath.Publisher
	runner Runner
	cfg    Config
	active *xsync.MapOf[string, string]
	logger *slog.Logger
}

func New(pub natsgath.Publisher, runner Runner, cfg Config, logger *slog.Logger) *Worker {
	if cfg.Parallel < 1 {
		cfg.Parallel = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		pub:    pub,
		runner: runner,
		cfg:    cfg,
		active: xsync.NewMapOf[string, string](),
		logger: logger,
	}
}

// Source yields request messages; *nats.Subscription satisfies it. A source
// signals its end with io.EOF.
type Source interface {
	NextMsgWithContext(ctx context.Context) (*nats.Msg, error)
}

// Serve subscribes to the request subject and judges messages until ctx is
// cancelled. The subscription is then drained and in-flight runs finish.
func (w *Worker) Serve(ctx context.Context, nc *nats.Conn) error {
	sub, err := nc.QueueSubscribeSync(w.cfg.Subject, QueueGroup)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", w.cfg.Subject, err)
	}
	// requests wait in the client until a run slot frees
	if err := sub.SetPendingLimits(-1, -1); err != nil {
		return fmt.Errorf("failed to lift pending limits: %w", err)
	}
	w.logger.Info("listening for requests", "subject", w.cfg.Subject, "parallel", w.cfg.Parallel)

	if err := w.Consume(ctx, sub); err != nil {
		return err
	}

	w.logger.Info("draining subscription...")
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("failed to drain subscription: %w", err)
	}
	return w.Consume(context.WithoutCancel(ctx), drained{sub})
}

// drained yields what is still pending on a draining subscription.
type drained struct{ sub *nats.Subscription }

func (d drained) NextMsgWithContext(context.Context) (*nats.Msg, error) {
	msg, err := d.sub.NextMsg(drainPoll)
	if err != nil {
		return nil, io.EOF
	}
	return msg, nil
}

// Consume judges messages from src with at most Parallel runs at a time. The
// next message is taken only once a run slot is free. It returns after ctx is
// cancelled or src ends, once every started run has finished.
func (w *Worker) Consume(ctx context.Context, src Source) error {
	runCtx := context.WithoutCancel(ctx)
	slots := make(chan struct{}, w.cfg.Parallel)
	var g errgroup.Group

	var srcErr error
	for srcErr == nil {
		select {
		case slots <- struct{}{}:
		case <-ctx.Done():
			return g.Wait()
		}

		msg, err := src.NextMsgWithContext(ctx)
		if err != nil {
			<-slots
			if ctx.Err() == nil && !errors.Is(err, io.EOF) {
				srcErr = fmt.Errorf("failed to receive request: %w", err)
			}
			break
		}
		g.Go(func() error {
			defer func() { <-slots }()
			w.Handle(runCtx, msg)
			return nil
		})
	}
	return errors.Join(srcErr, g.Wait())
}

// Handle judges a single request message. Every message gets exactly one
// judgement, including malformed ones.
func (w *Worker) Handle(ctx context.Context, msg *nats.Msg) {
	replyTo := msg.Reply
	if replyTo == "" {
		replyTo = w.cfg.ResultSubject
	}
	sink := natsgath.New(w.pub, replyTo)

	var req api.EvalReq
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		w.reject(ctx, sink, uuid.NewString(), fmt.Errorf("invalid request: %w", err))
		return
	}
	if req.EvalUuid == "" {
		req.EvalUuid = uuid.NewString()
	}
	logger := w.logger.With("eval_uuid", req.EvalUuid)

	key := filepath.Clean(req.Workdir)
	if owner, busy := w.active.LoadOrStore(key, req.EvalUuid); busy {
		logger.Warn("rejecting request", "workdir", key, "owner", owner)
		w.reject(ctx, sink, req.EvalUuid, fmt.Errorf("%w: %s", ErrWorkdirBusy, key))
		return
	}
	defer w.active.Delete(key)

	if err := w.runner.Run(ctx, req, sink); err != nil {
		logger.Error("evaluation ended with error", "error", err)
	}
}

// reject emits an internal-error judgement for a request that never reached
// the pipeline.
func (w *Worker) reject(ctx context.Context, sink judgement.Emitter, evalUuid string, cause error) {
	rec := judgement.Acquire(sink, evalUuid)
	_ = rec.Reject(api.StatusInternalError)
	_ = rec.AddMessages(api.Message{Description: cause.Error(), Format: api.FormatPlain, Type: "internal"})
	if err := rec.Release(ctx); err != nil {
		w.logger.Error("failed to send rejection", "eval_uuid", evalUuid, "error", err)
	}
}
