// Package gatherer holds the sinks a finished judgement can be emitted to.
package gatherer

import (
	"context"
	"errors"

	"github.com/programme-lv/cmake-judge/api"
	"github.com/programme-lv/cmake-judge/internal/judgement"
)

type tee []judgement.Emitter

// Tee emits each judgement to every sink in order. All sinks are tried even
// when an earlier one fails; their errors are joined.
func Tee(sinks ...judgement.Emitter) judgement.Emitter {
	flat := make(tee, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			flat = append(flat, s)
		}
	}
	return flat
}

func (t tee) Emit(ctx context.Context, j api.Judgement) error {
	var errs []error
	for _, s := range t {
		if err := s.Emit(ctx, j); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
