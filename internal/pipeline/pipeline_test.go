package pipeline_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/programme-lv/cmake-judge/api"
	"github.com/programme-lv/cmake-judge/internal/behave"
	"github.com/programme-lv/cmake-judge/internal/cmake"
	"github.com/programme-lv/cmake-judge/internal/judgement"
	"github.com/programme-lv/cmake-judge/internal/pipeline"
	"github.com/programme-lv/cmake-judge/internal/pipeline/mocks"
	"github.com/programme-lv/cmake-judge/internal/workspace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type collector struct {
	got []api.Judgement
	err error
}

func (c *collector) Emit(_ context.Context, j api.Judgement) error {
	c.got = append(c.got, j)
	return c.err
}

// only returns the single emitted judgement, failing if there were more or none.
func (c *collector) only(t *testing.T) api.Judgement {
	t.Helper()
	require.Len(t, c.got, 1, "exactly one judgement must be emitted")
	return c.got[0]
}

func newRequest(t *testing.T) api.EvalReq {
	t.Helper()
	dir := t.TempDir()
	workdir := filepath.Join(dir, "workdir")
	require.NoError(t, os.MkdirAll(workdir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(workdir, "build-config.json"),
		[]byte(`{"submission_path":"src/main.c"}`), 0644))

	src := filepath.Join(dir, "submission.c")
	require.NoError(t, os.WriteFile(src, []byte("int main(void) { return 0; }\n"), 0644))

	return api.EvalReq{
		Resources: filepath.Join(dir, "resources"),
		Source:    src,
		Workdir:   workdir,
		TimeLimit: 2,
	}
}

func outcome(step cmake.Step, s behave.SpecStep) cmake.Outcome {
	return cmake.Outcome{Step: step, Success: s.Exit == 0, ExitCode: s.Exit, Stderr: s.Stderr}
}

func TestScenarios(t *testing.T) {
	cases, err := behave.Parse(filepath.Join("testdata", "scenarios.toml"))
	require.NoError(t, err)
	require.NotEmpty(t, cases)

	for _, tc := range cases {
		t.Run(tc.Name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			builder := mocks.NewMockBuilder(ctrl)
			tester := mocks.NewMockTester(ctrl)

			req := newRequest(t)
			req.EvalUuid = tc.EvalUuid

			builder.EXPECT().Configure(gomock.Any(), gomock.Any(), req.Resources).
				Return(outcome(cmake.StepConfigure, tc.Configure), nil).Times(1)

			buildCalls := 0
			if tc.Configure.Exit == 0 {
				buildCalls = 1
			}
			builder.EXPECT().Build(gomock.Any(), gomock.Any()).
				Return(outcome(cmake.StepBuild, tc.Build), nil).Times(buildCalls)

			testerCalls := 0
			if tc.Expect.TesterCalled {
				testerCalls = 1
			}
			var testerErr error
			if tc.Tests.Error != "" {
				testerErr = errors.New(tc.Tests.Error)
			}
			tester.EXPECT().Run(gomock.Any(), req.Resources, gomock.Any(), req.Limits()).
				Return(tc.Tally(), testerErr).Times(testerCalls)

			sink := &collector{}
			err := pipeline.New(builder, tester).Run(context.Background(), req, sink)
			if testerErr != nil {
				require.ErrorIs(t, err, testerErr)
			} else {
				require.NoError(t, err)
			}

			got := sink.only(t)
			assert.Equal(t, tc.EvalUuid, got.EvalUuid)
			assert.Equal(t, tc.Expect.Status, got.Status)
			assert.Equal(t, tc.Expect.Accepted, got.Accepted)
			assert.Equal(t, tc.Expect.Stage, got.Stage)
		})
	}
}

func TestBuildFailureUndefinedReference(t *testing.T) {
	ctrl := gomock.NewController(t)
	builder := mocks.NewMockBuilder(ctrl)
	tester := mocks.NewMockTester(ctrl)

	builder.EXPECT().Configure(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(cmake.Outcome{Step: cmake.StepConfigure, Success: true}, nil)
	builder.EXPECT().Build(gomock.Any(), gomock.Any()).
		Return(cmake.Outcome{Step: cmake.StepBuild, ExitCode: 1, Stderr: "undefined reference"}, nil)
	tester.EXPECT().Run(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	sink := &collector{}
	require.NoError(t, pipeline.New(builder, tester).Run(context.Background(), newRequest(t), sink))

	got := sink.only(t)
	assert.Equal(t, api.StatusCompileError, got.Status)
	assert.False(t, got.Accepted)
	require.Len(t, got.Messages, 1)
	assert.Contains(t, got.Messages[0].Description, "CMake returned exit code **1**")
	assert.Contains(t, got.Messages[0].Description, "> undefined reference")
	assert.Nil(t, got.Tests)
}

func TestCompileErrorCarriesAnnotation(t *testing.T) {
	ctrl := gomock.NewController(t)
	builder := mocks.NewMockBuilder(ctrl)
	tester := mocks.NewMockTester(ctrl)

	builder.EXPECT().Configure(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(cmake.Outcome{Step: cmake.StepConfigure, Success: true}, nil)
	builder.EXPECT().Build(gomock.Any(), gomock.Any()).
		Return(cmake.Outcome{Step: cmake.StepBuild, ExitCode: 2, Stderr: "/w/src/main.c:3:5: error: unknown type name 'strin'\n"}, nil)

	sink := &collector{}
	require.NoError(t, pipeline.New(builder, tester).Run(context.Background(), newRequest(t), sink))

	got := sink.only(t)
	require.Len(t, got.Annotations, 1)
	assert.Equal(t, 3, got.Annotations[0].Row)
	assert.Equal(t, "unknown type name 'strin'", got.Messages[0].Description)
}

func TestAnyShortfallIsRejected(t *testing.T) {
	ctrl := gomock.NewController(t)
	builder := mocks.NewMockBuilder(ctrl)
	tester := mocks.NewMockTester(ctrl)
	builder.EXPECT().Configure(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(cmake.Outcome{Success: true}, nil).AnyTimes()
	builder.EXPECT().Build(gomock.Any(), gomock.Any()).
		Return(cmake.Outcome{Success: true}, nil).AnyTimes()

	c := pipeline.New(builder, tester)
	req := newRequest(t)
	for total := 1; total <= 12; total++ {
		for correct := 0; correct < total; correct++ {
			tester.EXPECT().Run(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
				Return(api.Tally{Correct: correct, Total: total}, nil).Times(1)

			sink := &collector{}
			require.NoError(t, c.Run(context.Background(), req, sink))
			got := sink.only(t)
			assert.Equal(t, api.StatusWrongAnswer, got.Status, "%d/%d", correct, total)
			assert.False(t, got.Accepted, "%d/%d", correct, total)
			assert.Equal(t, &api.Tally{Correct: correct, Total: total}, got.Tests)
		}
	}
}

func TestSetupFailureStillEmits(t *testing.T) {
	ctrl := gomock.NewController(t)
	builder := mocks.NewMockBuilder(ctrl)
	tester := mocks.NewMockTester(ctrl)

	req := newRequest(t)
	require.NoError(t, os.Remove(filepath.Join(req.Workdir, "build-config.json")))

	sink := &collector{}
	err := pipeline.New(builder, tester).Run(context.Background(), req, sink)
	require.ErrorIs(t, err, pipeline.ErrSetup)

	got := sink.only(t)
	assert.Equal(t, api.StatusInternalError, got.Status)
	assert.False(t, got.Accepted)
	assert.Equal(t, "staging", got.Stage)
	assert.NotEmpty(t, got.EvalUuid)
}

func TestMissingSubmissionIsSetupFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	req := newRequest(t)
	require.NoError(t, os.Remove(req.Source))

	sink := &collector{}
	err := pipeline.New(mocks.NewMockBuilder(ctrl), mocks.NewMockTester(ctrl)).Run(context.Background(), req, sink)
	require.ErrorIs(t, err, pipeline.ErrSetup)

	var ioErr *workspace.IOFailure
	assert.ErrorAs(t, err, &ioErr)
	assert.Equal(t, api.StatusInternalError, sink.only(t).Status)
}

func TestBuildToolUnavailable(t *testing.T) {
	ctrl := gomock.NewController(t)
	builder := mocks.NewMockBuilder(ctrl)
	toolErr := errors.New("exec: \"cmake\": executable file not found in $PATH")
	builder.EXPECT().Configure(gomock.Any(), gomock.Any(), gomock.Any()).Return(cmake.Outcome{}, toolErr)

	sink := &collector{}
	err := pipeline.New(builder, mocks.NewMockTester(ctrl)).Run(context.Background(), newRequest(t), sink)
	require.ErrorIs(t, err, toolErr)
	assert.NotErrorIs(t, err, pipeline.ErrSetup)

	got := sink.only(t)
	assert.Equal(t, api.StatusInternalError, got.Status)
	assert.Equal(t, "configuring", got.Stage)
}

func TestPanicStillEmits(t *testing.T) {
	ctrl := gomock.NewController(t)
	builder := mocks.NewMockBuilder(ctrl)
	tester := mocks.NewMockTester(ctrl)
	builder.EXPECT().Configure(gomock.Any(), gomock.Any(), gomock.Any()).Return(cmake.Outcome{Success: true}, nil)
	builder.EXPECT().Build(gomock.Any(), gomock.Any()).Return(cmake.Outcome{Success: true}, nil)
	tester.EXPECT().Run(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, string, string, api.Limits) (api.Tally, error) {
			panic("runner exploded")
		})

	sink := &collector{}
	assert.PanicsWithValue(t, "runner exploded", func() {
		_ = pipeline.New(builder, tester).Run(context.Background(), newRequest(t), sink)
	})

	got := sink.only(t)
	assert.Equal(t, api.StatusInternalError, got.Status)
	assert.False(t, got.Accepted)
	assert.Equal(t, "testing", got.Stage)
}

func TestResolverFeedsBuildAndTests(t *testing.T) {
	ctrl := gomock.NewController(t)
	builder := mocks.NewMockBuilder(ctrl)
	tester := mocks.NewMockTester(ctrl)
	resolver := mocks.NewMockResolver(ctrl)

	req := newRequest(t)
	req.Resources = "s3://bucket/exercise.tar.zst"
	local := t.TempDir()

	resolver.EXPECT().Resolve(gomock.Any(), req.Resources).Return(local, nil)
	builder.EXPECT().Configure(gomock.Any(), gomock.Any(), local).Return(cmake.Outcome{Success: true}, nil)
	builder.EXPECT().Build(gomock.Any(), gomock.Any()).Return(cmake.Outcome{Success: true}, nil)
	tester.EXPECT().Run(gomock.Any(), local, filepath.Join(req.Workdir, "build", "test"), req.Limits()).
		Return(api.Tally{Correct: 3, Total: 3}, nil)

	sink := &collector{}
	require.NoError(t, pipeline.New(builder, tester, pipeline.WithResolver(resolver)).Run(context.Background(), req, sink))
	assert.True(t, sink.only(t).Accepted)
}

func TestResolverFailureIsSetupFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	resolver := mocks.NewMockResolver(ctrl)
	resolver.EXPECT().Resolve(gomock.Any(), gomock.Any()).Return("", errors.New("access denied"))

	sink := &collector{}
	err := pipeline.New(mocks.NewMockBuilder(ctrl), mocks.NewMockTester(ctrl), pipeline.WithResolver(resolver)).
		Run(context.Background(), newRequest(t), sink)
	require.ErrorIs(t, err, pipeline.ErrSetup)
	assert.Equal(t, api.StatusInternalError, sink.only(t).Status)
}

func TestEmitErrorIsReturned(t *testing.T) {
	ctrl := gomock.NewController(t)
	builder := mocks.NewMockBuilder(ctrl)
	builder.EXPECT().Configure(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(cmake.Outcome{ExitCode: 1}, nil)

	sink := &collector{err: errors.New("broken pipe")}
	err := pipeline.New(builder, mocks.NewMockTester(ctrl)).Run(context.Background(), newRequest(t), sink)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken pipe")
	assert.Len(t, sink.got, 1)
}

func TestEmitterFunc(t *testing.T) {
	ctrl := gomock.NewController(t)
	builder := mocks.NewMockBuilder(ctrl)
	builder.EXPECT().Configure(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(cmake.Outcome{ExitCode: 1}, nil)

	calls := 0
	sink := judgement.EmitterFunc(func(context.Context, api.Judgement) error {
		calls++
		return nil
	})
	require.NoError(t, pipeline.New(builder, mocks.NewMockTester(ctrl)).Run(context.Background(), newRequest(t), sink))
	assert.Equal(t, 1, calls)
}

func TestCancelledRunStillEmits(t *testing.T) {
	ctrl := gomock.NewController(t)
	builder := mocks.NewMockBuilder(ctrl)
	ctx, cancel := context.WithCancel(context.Background())
	builder.EXPECT().Configure(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, workspace.Workspace, string) (cmake.Outcome, error) {
			cancel()
			return cmake.Outcome{ExitCode: 1, Stderr: "terminated"}, nil
		})

	var emitCtxErr error
	sink := judgement.EmitterFunc(func(ctx context.Context, _ api.Judgement) error {
		emitCtxErr = ctx.Err()
		return ctx.Err()
	})
	require.NoError(t, pipeline.New(builder, mocks.NewMockTester(ctrl)).Run(ctx, newRequest(t), sink))
	assert.NoError(t, emitCtxErr)
}

func TestTallySummaryBecomesMessage(t *testing.T) {
	ctrl := gomock.NewController(t)
	builder := mocks.NewMockBuilder(ctrl)
	tester := mocks.NewMockTester(ctrl)
	builder.EXPECT().Configure(gomock.Any(), gomock.Any(), gomock.Any()).Return(cmake.Outcome{Success: true}, nil)
	builder.EXPECT().Build(gomock.Any(), gomock.Any()).Return(cmake.Outcome{Success: true}, nil)
	summary := api.Message{Description: "##### Hidden tests: ░░░░░░░░░░░░░░░░░░░░ 0/1 correct", Format: api.FormatMarkdown}
	tester.EXPECT().Run(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(api.Tally{Correct: 1, Total: 2, Results: []api.TestResult{{Name: "a.c", Correct: true}}, Summary: []api.Message{summary}}, nil)

	sink := &collector{}
	require.NoError(t, pipeline.New(builder, tester).Run(context.Background(), newRequest(t), sink))

	got := sink.only(t)
	assert.Equal(t, api.StatusWrongAnswer, got.Status)
	assert.Equal(t, []api.Message{summary}, got.Messages)
	assert.Len(t, got.Tests.Results, 1)
}
