package gatherer_test

import (
	"context"
	"errors"
	"testing"

	"github.com/programme-lv/cmake-judge/api"
	"github.com/programme-lv/cmake-judge/internal/gatherer"
	"github.com/programme-lv/cmake-judge/internal/judgement"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTeeEmitsToAll(t *testing.T) {
	var got []string
	sink := func(name string, err error) judgement.Emitter {
		return judgement.EmitterFunc(func(_ context.Context, j api.Judgement) error {
			got = append(got, name+":"+j.EvalUuid)
			return err
		})
	}

	errA := errors.New("a is down")
	errC := errors.New("c is down")
	tee := gatherer.Tee(sink("a", errA), nil, sink("b", nil), sink("c", errC))

	err := tee.Emit(context.Background(), api.Judgement{EvalUuid: "42"})
	require.Error(t, err)
	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errC)
	assert.Equal(t, []string{"a:42", "b:42", "c:42"}, got)
}

func TestTeeEmpty(t *testing.T) {
	assert.NoError(t, gatherer.Tee().Emit(context.Background(), api.Judgement{}))
}
