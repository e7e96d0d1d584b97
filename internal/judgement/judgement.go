// Package judgement owns the single verdict record of a grading run.
//
// A record is acquired when a run starts and released exactly once when it ends.
// Release hands the final snapshot to an Emitter.
package judgement

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/programme-lv/cmake-judge/api"
)

var (
	ErrReleased      = errors.New("judgement already released")
	ErrInvalidStatus = errors.New("invalid judgement status")
)

// Emitter delivers a finished judgement to the calling platform.
type Emitter interface {
	Emit(ctx context.Context, j api.Judgement) error
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(ctx context.Context, j api.Judgement) error

func (f EmitterFunc) Emit(ctx context.Context, j api.Judgement) error { return f(ctx, j) }

type Record struct {
	mu       sync.Mutex
	once     sync.Once
	released bool
	sink     Emitter
	j        api.Judgement
}

// Acquire starts a record in the pending state with acceptance assumed.
func Acquire(sink Emitter, evalUuid string) *Record {
	return &Record{
		sink: sink,
		j: api.Judgement{
			EvalUuid: evalUuid,
			Status:   api.StatusPending,
			Accepted: true,
		},
	}
}

// SetStatus records a terminal status. The last write before Release wins.
func (r *Record) SetStatus(s api.Status) error {
	if !s.IsTerminal() {
		return fmt.Errorf("%w: %s", ErrInvalidStatus, s)
	}
	return r.update(func(j *api.Judgement) { j.Status = s })
}

func (r *Record) SetAccepted(accepted bool) error {
	return r.update(func(j *api.Judgement) { j.Accepted = accepted })
}

// SetStage notes the pipeline stage the run ended in.
func (r *Record) SetStage(stage string) error {
	return r.update(func(j *api.Judgement) { j.Stage = stage })
}

func (r *Record) AddMessages(msgs ...api.Message) error {
	return r.update(func(j *api.Judgement) { j.Messages = append(j.Messages, msgs...) })
}

func (r *Record) AddAnnotations(anns ...api.Annotation) error {
	return r.update(func(j *api.Judgement) { j.Annotations = append(j.Annotations, anns...) })
}

func (r *Record) SetTally(t api.Tally) error {
	return r.update(func(j *api.Judgement) { j.Tests = &t })
}

// Reject is shorthand for setting a terminal status with accepted=false.
func (r *Record) Reject(s api.Status) error {
	if err := r.SetStatus(s); err != nil {
		return err
	}
	return r.SetAccepted(false)
}

// Snapshot returns a copy of the current judgement.
func (r *Record) Snapshot() api.Judgement {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot()
}

// Released reports whether Release already ran.
func (r *Record) Released() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.released
}

// Release emits the judgement. Only the first call emits; later calls return
// ErrReleased. The sink sees ctx without its cancellation, so a judgement
// released during shutdown still goes out.
func (r *Record) Release(ctx context.Context) error {
	err := ErrReleased
	r.once.Do(func() {
		r.mu.Lock()
		r.released = true
		j := r.snapshot()
		r.mu.Unlock()

		err = nil
		if r.sink != nil {
			if emitErr := r.sink.Emit(context.WithoutCancel(ctx), j); emitErr != nil {
				err = fmt.Errorf("failed to emit judgement: %w", emitErr)
			}
		}
	})
	return err
}

func (r *Record) update(fn func(j *api.Judgement)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.released {
		return ErrReleased
	}
	fn(&r.j)
	return nil
}

func (r *Record) snapshot() api.Judgement {
	j := r.j
	j.Messages = slices.Clone(r.j.Messages)
	j.Annotations = slices.Clone(r.j.Annotations)
	if r.j.Tests != nil {
		t := *r.j.Tests
		t.Results = slices.Clone(t.Results)
		for i := range t.Results {
			t.Results[i].Messages = slices.Clone(t.Results[i].Messages)
		}
		t.Summary = slices.Clone(t.Summary)
		j.Tests = &t
	}
	return j
}
