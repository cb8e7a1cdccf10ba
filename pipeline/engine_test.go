package pipeline

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/reposcout/candidate"
	"github.com/teranos/reposcout/errors"
)

func sampleCandidates(n int) candidate.List {
	out := make(candidate.List, n)
	for i := range out {
		out[i] = candidate.Candidate{
			FullName: fmt.Sprintf("owner/repo-%02d", i),
			CloneURL: fmt.Sprintf("https://example.com/owner/repo-%02d.git", i),
			Stars:    i * 10,
		}
	}
	return out
}

// passThroughStages wires every stage to a trivial implementation that
// satisfies its contract.
func passThroughStages(n int) map[StageName]StageFunc {
	from := func(slot Slot) StageFunc {
		return func(ctx context.Context, in Input) (Output, error) {
			return Output{Candidates: in.Collection(slot)}, nil
		}
	}
	return map[StageName]StageFunc{
		QueryRewrite: func(ctx context.Context, in Input) (Output, error) {
			return Output{Text: "q:" + in.Request}, nil
		},
		HardwareExtract: func(ctx context.Context, in Input) (Output, error) {
			return Output{Text: "hw(" + in.Query + ")"}, nil
		},
		Ingest: func(ctx context.Context, in Input) (Output, error) {
			return Output{Candidates: sampleCandidates(n)}, nil
		},
		DenseRetrieve:      from(SlotIngested),
		Rerank:             from(SlotRetrieved),
		ThresholdFilter:    from(SlotReranked),
		DependencyAnalysis: from(SlotFiltered),
		ActivityAnalysis:   from(SlotFiltered),
		DecisionMaker: func(ctx context.Context, in Input) (Output, error) {
			return Output{Flag: true}, nil
		},
		QualityAnalysis: from(SlotDependencies),
		Merge:           from(SlotQuality),
		Rank: func(ctx context.Context, in Input) (Output, error) {
			list := in.Collection(SlotMerged)
			sort.SliceStable(list, func(i, j int) bool { return list[i].FullName > list[j].FullName })
			return Output{Candidates: list}, nil
		},
		Present: func(ctx context.Context, in Input) (Output, error) {
			return Output{Text: fmt.Sprintf("%d results", len(in.Collection(SlotRanked)))}, nil
		},
	}
}

func newTestEngine(t *testing.T, funcs map[StageName]StageFunc, opts ...Option) *Engine {
	t.Helper()
	e, err := New(funcs, append([]Option{WithLogger(zaptest.NewLogger(t).Sugar())}, opts...)...)
	require.NoError(t, err)
	return e
}

func TestRun_HappyPath(t *testing.T) {
	e := newTestEngine(t, passThroughStages(4))

	state, err := e.Run(context.Background(), "find repos")
	require.NoError(t, err)

	assert.NotEmpty(t, state.RunID)
	assert.Equal(t, "q:find repos", state.Query())
	assert.Equal(t, "hw(q:find repos)", state.Hardware())
	assert.True(t, state.RunCodeAnalysis())
	assert.Equal(t, "4 results", state.Presentation())
	assert.Equal(t, []string{"owner/repo-03", "owner/repo-02", "owner/repo-01", "owner/repo-00"}, state.Final().Names())
	for _, slot := range []Slot{SlotIngested, SlotRetrieved, SlotReranked, SlotFiltered, SlotDependencies, SlotActivity, SlotQuality, SlotMerged, SlotRanked} {
		assert.True(t, state.Has(slot), slot)
	}
}

func TestRun_EveryStageExactlyOnceAndJoinsWaitForAllPredecessors(t *testing.T) {
	funcs := passThroughStages(3)
	// Skew branch timings so the fast predecessor of each join finishes first.
	slow := func(d time.Duration, f StageFunc) StageFunc {
		return func(ctx context.Context, in Input) (Output, error) {
			time.Sleep(d)
			return f(ctx, in)
		}
	}
	funcs[DependencyAnalysis] = slow(60*time.Millisecond, funcs[DependencyAnalysis])
	funcs[ActivityAnalysis] = slow(10*time.Millisecond, funcs[ActivityAnalysis])
	funcs[QualityAnalysis] = slow(40*time.Millisecond, funcs[QualityAnalysis])

	rec := &Recorder{}
	e := newTestEngine(t, funcs, WithObserver(rec))
	_, err := e.Run(context.Background(), "req")
	require.NoError(t, err)

	events := rec.Events()
	started := map[StageName]int{}
	completed := map[StageName]int{}
	for i, ev := range events {
		switch ev.Type {
		case StageStarted:
			_, dup := started[ev.Stage]
			assert.False(t, dup, "stage %s started twice", ev.Stage)
			started[ev.Stage] = i
		case StageCompleted:
			completed[ev.Stage] = i
		}
	}
	require.Len(t, started, len(Graph()))
	require.Len(t, completed, len(Graph()))

	for _, spec := range Graph() {
		for _, dep := range spec.After {
			assert.Less(t, completed[dep], started[spec.Name],
				"%s started before predecessor %s completed", spec.Name, dep)
		}
	}
}

func TestRun_FanOutBranchesRunConcurrently(t *testing.T) {
	funcs := passThroughStages(2)

	var arrived sync.WaitGroup
	arrived.Add(3)
	allHere := make(chan struct{})
	go func() { arrived.Wait(); close(allHere) }()

	barrier := func(f StageFunc) StageFunc {
		return func(ctx context.Context, in Input) (Output, error) {
			arrived.Done()
			select {
			case <-allHere:
			case <-time.After(2 * time.Second):
				return Output{}, errors.New("fan-out branches did not overlap")
			}
			return f(ctx, in)
		}
	}
	funcs[DependencyAnalysis] = barrier(funcs[DependencyAnalysis])
	funcs[ActivityAnalysis] = barrier(funcs[ActivityAnalysis])
	funcs[DecisionMaker] = barrier(funcs[DecisionMaker])

	e := newTestEngine(t, funcs)
	_, err := e.Run(context.Background(), "req")
	require.NoError(t, err)
}

func TestRun_BranchSnapshotsAreIsolated(t *testing.T) {
	funcs := passThroughStages(2)
	funcs[ActivityAnalysis] = func(ctx context.Context, in Input) (Output, error) {
		list := in.Collection(SlotFiltered)
		for i := range list {
			list[i].Activity = &candidate.Activity{Score: 42}
		}
		return Output{Candidates: list}, nil
	}
	funcs[DependencyAnalysis] = func(ctx context.Context, in Input) (Output, error) {
		time.Sleep(20 * time.Millisecond)
		list := in.Collection(SlotFiltered)
		for _, c := range list {
			if c.Activity != nil {
				return Output{}, errors.New("saw a sibling branch's annotation")
			}
		}
		return Output{Candidates: list}, nil
	}

	e := newTestEngine(t, funcs)
	state, err := e.Run(context.Background(), "req")
	require.NoError(t, err)
	assert.Nil(t, state.Collection(SlotFiltered)[0].Activity)
	assert.Equal(t, 42.0, state.Collection(SlotActivity)[0].Activity.Score)
}

func TestRun_StageErrorAbortsRun(t *testing.T) {
	funcs := passThroughStages(3)
	funcs[Rerank] = func(ctx context.Context, in Input) (Output, error) {
		return Output{}, errors.New("model unavailable")
	}
	rec := &Recorder{}
	e := newTestEngine(t, funcs, WithObserver(rec))

	state, err := e.Run(context.Background(), "req")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stage rerank")
	assert.Contains(t, err.Error(), "model unavailable")
	assert.False(t, state.Has(SlotFiltered))

	for _, ev := range rec.Events() {
		assert.NotEqual(t, ThresholdFilter, ev.Stage, "downstream stage must not start")
	}
}

func TestRun_SiblingFailureCancelsAndDrains(t *testing.T) {
	funcs := passThroughStages(3)
	funcs[DecisionMaker] = func(ctx context.Context, in Input) (Output, error) {
		return Output{}, errors.New("decision failed")
	}
	var sawCancel sync.WaitGroup
	sawCancel.Add(1)
	funcs[ActivityAnalysis] = func(ctx context.Context, in Input) (Output, error) {
		defer sawCancel.Done()
		select {
		case <-ctx.Done():
			return Output{}, ctx.Err()
		case <-time.After(5 * time.Second):
			return Output{Candidates: in.Collection(SlotFiltered)}, nil
		}
	}

	e := newTestEngine(t, funcs)
	start := time.Now()
	_, err := e.Run(context.Background(), "req")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decision failed")
	assert.Less(t, time.Since(start), 4*time.Second)
	sawCancel.Wait()
}

func TestRun_EmptyIngestIsFatal(t *testing.T) {
	e := newTestEngine(t, passThroughStages(0))

	_, err := e.Run(context.Background(), "req")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNoCandidates))
}

func TestRun_DuplicateOutputIsFatal(t *testing.T) {
	funcs := passThroughStages(3)
	funcs[DenseRetrieve] = func(ctx context.Context, in Input) (Output, error) {
		list := in.Collection(SlotIngested)
		return Output{Candidates: append(list, list[0])}, nil
	}
	e := newTestEngine(t, funcs)

	_, err := e.Run(context.Background(), "req")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvariant))
	assert.Contains(t, err.Error(), "duplicate")
}

func TestRun_FilterCannotReintroduceCandidates(t *testing.T) {
	funcs := passThroughStages(3)
	funcs[ThresholdFilter] = func(ctx context.Context, in Input) (Output, error) {
		list := in.Collection(SlotReranked)
		return Output{Candidates: append(list[:1], candidate.Candidate{FullName: "intruder/repo"})}, nil
	}
	e := newTestEngine(t, funcs)

	_, err := e.Run(context.Background(), "req")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvariant))
}

func TestRun_FilterCannotReorder(t *testing.T) {
	funcs := passThroughStages(3)
	funcs[DependencyAnalysis] = func(ctx context.Context, in Input) (Output, error) {
		list := in.Collection(SlotFiltered)
		return Output{Candidates: candidate.List{list[2], list[0]}}, nil
	}
	e := newTestEngine(t, funcs)

	_, err := e.Run(context.Background(), "req")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvariant))
}

func TestRun_MapMustKeepCandidates(t *testing.T) {
	funcs := passThroughStages(3)
	funcs[Merge] = func(ctx context.Context, in Input) (Output, error) {
		return Output{Candidates: in.Collection(SlotQuality)[:2]}, nil
	}
	e := newTestEngine(t, funcs)

	_, err := e.Run(context.Background(), "req")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "map changed size")
}

func TestRun_PanicBecomesError(t *testing.T) {
	funcs := passThroughStages(3)
	funcs[Present] = func(ctx context.Context, in Input) (Output, error) {
		panic("template exploded")
	}
	e := newTestEngine(t, funcs)

	_, err := e.Run(context.Background(), "req")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "template exploded")
}

func TestRun_StageTimeout(t *testing.T) {
	funcs := passThroughStages(3)
	funcs[ActivityAnalysis] = func(ctx context.Context, in Input) (Output, error) {
		<-ctx.Done()
		return Output{}, ctx.Err()
	}
	e := newTestEngine(t, funcs, WithStageTimeout(50*time.Millisecond))

	_, err := e.Run(context.Background(), "req")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrTimeout) || errors.Is(err, context.DeadlineExceeded))
}

func TestInput_OnlyAncestorSlotsVisible(t *testing.T) {
	funcs := passThroughStages(2)
	funcs[ActivityAnalysis] = func(ctx context.Context, in Input) (Output, error) {
		if in.Collection(SlotDependencies) != nil {
			return Output{}, errors.New("sibling slot leaked into input")
		}
		return Output{Candidates: in.Collection(SlotFiltered)}, nil
	}
	funcs[QualityAnalysis] = func(ctx context.Context, in Input) (Output, error) {
		if !in.RunCodeAnalysis {
			return Output{}, errors.New("decision not visible to join")
		}
		return Output{Candidates: in.Collection(SlotDependencies)}, nil
	}
	e := newTestEngine(t, funcs)
	_, err := e.Run(context.Background(), "req")
	require.NoError(t, err)
}

func TestNew_MissingStageFunction(t *testing.T) {
	funcs := passThroughStages(1)
	delete(funcs, Merge)
	_, err := New(funcs)
	assert.ErrorContains(t, err, "merge")
}

func TestCompile_RejectsBadGraphs(t *testing.T) {
	_, err := compile([]Spec{
		{Name: "a", After: []StageName{"b"}},
		{Name: "b", After: []StageName{"a"}},
	})
	assert.ErrorContains(t, err, "cycle")

	_, err = compile([]Spec{{Name: "a", After: []StageName{"ghost"}}})
	assert.ErrorContains(t, err, "unknown stage")

	_, err = compile([]Spec{
		{Name: "a", Kind: KindSource, Writes: "x"},
		{Name: "b", Kind: KindSource, Writes: "x"},
	})
	assert.ErrorContains(t, err, "both write")

	_, err = compile([]Spec{
		{Name: "a", Kind: KindSource, Writes: "x"},
		{Name: "b", Kind: KindFilter, From: "x", Writes: "y"},
	})
	assert.ErrorContains(t, err, "no predecessor writes")
}

func TestGraph_Compiles(t *testing.T) {
	g, err := compile(Graph())
	require.NoError(t, err)
	assert.True(t, g.ancestors[Merge][ThresholdFilter])
	assert.True(t, g.ancestors[QualityAnalysis][DecisionMaker])
	assert.False(t, g.ancestors[QualityAnalysis][ActivityAnalysis])
	assert.ElementsMatch(t, []StageName{DependencyAnalysis, ActivityAnalysis, DecisionMaker}, g.dependents[ThresholdFilter])
}
