package pipeline

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pbosetti/mads-plugin/errors"
	"github.com/pbosetti/mads-plugin/health"
	"github.com/pbosetti/mads-plugin/pkg/retry"
	"github.com/pbosetti/mads-plugin/pkg/timestamp"
	"github.com/pbosetti/mads-plugin/plugin"
	"github.com/pbosetti/mads-plugin/testutil"
)

func stageOf[P plugin.Plugin](t *testing.T, name string, p P) *Stage[P] {
	t.Helper()
	stage, err := NewStage(name, fmt.Sprintf("%T", p), name, func() (P, error) { return p, nil }, nil)
	require.NoError(t, err)
	return stage
}

func double(v int) (int, plugin.ReturnType) { return 2 * v, plugin.Success }

func statuses(r CycleReport) []string {
	var out []string
	for _, s := range r.Stages {
		out = append(out, s.Stage+"."+s.Operation+"="+s.Status.String())
	}
	return out
}

var deterministic = Options{
	Interval: time.Second,
	Retry:    retry.Config{InitialDelay: 10 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2},
}

func TestCycle_ForwardsThroughFilters(t *testing.T) {
	src := testutil.NewScriptedSource(testutil.Ok(3))
	f1 := testutil.NewMapFilter(double)
	f2 := testutil.NewMapFilter(func(v int) (int, plugin.ReturnType) { return v + 1, plugin.Warning })
	s1 := testutil.NewRecordingSink[int]("a")
	s2 := testutil.NewRecordingSink[int]("b")

	p := New("calc", stageOf(t, "source", plugin.Source[int](src))).
		AddFilter(stageOf(t, "filter.0", plugin.Filter[int, int](f1))).
		AddFilter(stageOf(t, "filter.1", plugin.Filter[int, int](f2))).
		AddSink(stageOf(t, "sink.0", plugin.Sink[int](s1))).
		AddSink(stageOf(t, "sink.1", plugin.Sink[int](s2))).
		SetTopic(func(v int) string { return fmt.Sprintf("n.%d", v) })
	defer p.Close()

	report := p.Cycle(context.Background())
	assert.True(t, report.Delivered)
	assert.Equal(t, plugin.Warning, report.Worst())
	assert.Equal(t, []int{7}, s1.Received)
	assert.Equal(t, []int{7}, s2.Received)
	assert.Equal(t, []string{"n.3"}, f1.Topics)
	assert.Equal(t, []string{"n.3"}, s1.Topics, "the topic of the source output travels to the sinks")
	assert.Equal(t, []string{
		"source.get_output=success",
		"filter.0.load_data=success", "filter.0.process=success",
		"filter.1.load_data=success", "filter.1.process=warning",
		"sink.0.load_data=success", "sink.1.load_data=success",
	}, statuses(report))
	assert.Equal(t, int64(1), p.Cycles())
}

func TestCycle_StopsAtFirstUnforwardableStatus(t *testing.T) {
	tests := []struct {
		name      string
		source    plugin.ReturnType
		filter    plugin.ReturnType
		wantStage string
	}{
		{"source retry", plugin.Retry, plugin.Success, "source"},
		{"source error", plugin.Error, plugin.Success, "source"},
		{"filter retry", plugin.Success, plugin.Retry, "filter.0"},
		{"filter error", plugin.Success, plugin.Error, "filter.0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := testutil.NewScriptedSource(testutil.Step[int]{Status: tt.source, Value: 1, Err: "boom"})
			f := testutil.NewMapFilter(func(v int) (int, plugin.ReturnType) { return v, tt.filter })
			sink := testutil.NewRecordingSink[int]("out")
			p := New("p", stageOf(t, "source", plugin.Source[int](src))).
				AddFilter(stageOf(t, "filter.0", plugin.Filter[int, int](f))).
				AddSink(stageOf(t, "sink.0", plugin.Sink[int](sink)))
			defer p.Close()

			report := p.Cycle(context.Background())
			assert.False(t, report.Delivered)
			assert.Empty(t, sink.Received)
			last := report.Stages[len(report.Stages)-1]
			assert.Equal(t, tt.wantStage, last.Stage)
			assert.False(t, last.Status.Forwardable())
		})
	}
}

func TestCycle_SourceRetryClearsOutput(t *testing.T) {
	src := testutil.NewScriptedSource[int]()
	out, blob := 99, plugin.Blob{Format: "x", Data: []byte{1}}
	assert.Equal(t, plugin.Retry, src.GetOutput(context.Background(), &out, &blob))
	assert.Zero(t, out)
	assert.True(t, blob.Empty())
}

func TestCycle_Blob(t *testing.T) {
	src := testutil.NewScriptedSource(testutil.Step[int]{Status: plugin.Success, Value: 5, Blob: []byte{1, 2, 3}})
	b1 := testutil.NewBlobRecordingSink[int]("b1")
	b2 := testutil.NewBlobRecordingSink[int]("b2")
	plain := testutil.NewRecordingSink[int]("plain")

	p := New("frames", stageOf(t, "source", plugin.Source[int](src))).
		AddSink(stageOf(t, "sink.0", plugin.Sink[int](b1))).
		AddSink(stageOf(t, "sink.1", plugin.Sink[int](b2))).
		AddSink(stageOf(t, "sink.2", plugin.Sink[int](plain)))
	defer p.Close()

	report := p.Cycle(context.Background())
	assert.True(t, report.Blob)
	assert.Equal(t, []string{
		"source.get_output=success",
		"sink.0.load_blob=success", "sink.1.load_blob=success", "sink.2.load_data=success",
	}, statuses(report))

	require.Len(t, b1.Blobs, 1)
	require.Len(t, b2.Blobs, 1)
	assert.Equal(t, []byte{1, 2, 3}, b1.Blobs[0].Data)
	b1.Blobs[0].Data[0] = 42
	assert.Equal(t, byte(1), b2.Blobs[0].Data[0], "each sink gets its own copy")
	assert.Equal(t, []int{5}, plain.Received, "sinks without blob support still get the value")

	// the script is exhausted
	report = p.Cycle(context.Background())
	assert.Equal(t, plugin.Retry, report.SourceStatus())
}

func TestRun_CriticalStops(t *testing.T) {
	src := testutil.NewScriptedSource(testutil.Ok(1), testutil.Ok(2), testutil.Ok(3), testutil.Ok(4))
	sink := testutil.NewRecordingSink[int]("out", plugin.Success, plugin.Critical)
	p := New("p", stageOf(t, "source", plugin.Source[int](src)),
		WithOptions(deterministic), WithClock(timestamp.NewManual(time.Unix(0, 0)))).
		AddSink(stageOf(t, "sink.0", plugin.Sink[int](sink)))

	err := p.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))
	assert.ErrorIs(t, err, errors.ErrTerminated)
	assert.Contains(t, err.Error(), "scripted critical")
	assert.Equal(t, int64(2), p.Cycles())

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.Equal(t, []int{1, 2}, sink.Received)
	assert.Equal(t, 1, sink.Resource.Closes())
	assert.Empty(t, sink.Resource.Violations())
}

func TestRun_RecordsHealth(t *testing.T) {
	monitor := health.NewMonitor()
	src := testutil.NewScriptedSource(testutil.Ok(1), testutil.Ok(2), testutil.Ok(3))
	sink := testutil.NewRecordingSink[int]("out", plugin.Success, plugin.Critical)
	p := New("p", stageOf(t, "source", plugin.Source[int](src)),
		WithOptions(deterministic), WithClock(timestamp.NewManual(time.Unix(0, 0))), WithHealth(monitor)).
		AddSink(stageOf(t, "sink.0", plugin.Sink[int](sink)))
	defer p.Close()

	require.Error(t, p.Run(context.Background()))

	src0, ok := monitor.Get("p/source")
	require.True(t, ok)
	assert.True(t, src0.IsHealthy())
	assert.Equal(t, int64(2), src0.Metrics.Calls)

	sink0, ok := monitor.Get("p/sink.0")
	require.True(t, ok)
	assert.True(t, sink0.IsUnhealthy())
	assert.Contains(t, sink0.Message, "scripted critical")
	assert.True(t, monitor.AggregateHealth("host").IsUnhealthy())
}

func TestRun_RecreateAfterCritical(t *testing.T) {
	var sinks []*testutil.RecordingSink[int]
	sinkStage, err := NewStage("sink.0", "recording", RoleSink, func() (plugin.Sink[int], error) {
		script := []plugin.ReturnType{plugin.Success, plugin.Critical}
		if len(sinks) > 0 {
			script = nil
		}
		s := testutil.NewRecordingSink[int](fmt.Sprintf("out-%d", len(sinks)), script...)
		sinks = append(sinks, s)
		return s, nil
	}, nil)
	require.NoError(t, err)

	opts := deterministic
	opts.MaxCycles = 4
	opts.Recreate = true
	clock := timestamp.NewManual(time.Unix(0, 0))
	src := testutil.NewScriptedSource(testutil.Ok(1), testutil.Ok(2), testutil.Ok(3), testutil.Ok(4))
	p := New("p", stageOf(t, "source", plugin.Source[int](src)), WithOptions(opts), WithClock(clock)).
		AddSink(sinkStage)

	require.NoError(t, p.Run(context.Background()))
	require.NoError(t, p.Close())

	require.Len(t, sinks, 2)
	assert.Equal(t, []int{1, 2}, sinks[0].Received)
	assert.Equal(t, []int{3, 4}, sinks[1].Received)
	for _, s := range sinks {
		assert.Equal(t, 1, s.Resource.Closes())
		assert.Empty(t, s.Resource.Violations())
	}
	// three intervals and one backoff step after the recreation
	assert.Equal(t, 3*time.Second+10*time.Millisecond, clock.Now().Sub(time.Unix(0, 0)))
}

func TestRun_SourceRetryBacksOff(t *testing.T) {
	src := testutil.NewScriptedSource(
		testutil.Step[int]{Status: plugin.Retry},
		testutil.Step[int]{Status: plugin.Retry},
		testutil.Ok(1),
	)
	sink := testutil.NewRecordingSink[int]("out")
	opts := deterministic
	opts.MaxCycles = 3
	clock := timestamp.NewManual(time.Unix(0, 0))
	p := New("p", stageOf(t, "source", plugin.Source[int](src)), WithOptions(opts), WithClock(clock)).
		AddSink(stageOf(t, "sink.0", plugin.Sink[int](sink)))
	defer p.Close()

	require.NoError(t, p.Run(context.Background()))
	assert.Equal(t, []int{1}, sink.Received)
	assert.Equal(t, 10*time.Millisecond+20*time.Millisecond+time.Second, clock.Now().Sub(time.Unix(0, 0)))
}

func TestRun_ErrorsAndWarningsContinue(t *testing.T) {
	src := testutil.NewScriptedSource(testutil.Ok(1), testutil.Fail[int](plugin.Error, "bad read"), testutil.Ok(3))
	sink := testutil.NewRecordingSink[int]("out", plugin.Warning)
	opts := deterministic
	opts.MaxCycles = 3
	p := New("p", stageOf(t, "source", plugin.Source[int](src)),
		WithOptions(opts), WithClock(timestamp.NewManual(time.Unix(0, 0)))).
		AddSink(stageOf(t, "sink.0", plugin.Sink[int](sink)))
	defer p.Close()

	require.NoError(t, p.Run(context.Background()))
	assert.Equal(t, []int{1, 3}, sink.Received)
}

func TestRun_ContextCancelIsNormalStop(t *testing.T) {
	src := testutil.NewScriptedSource(testutil.Ok(1))
	sink := testutil.NewRecordingSink[int]("out")
	p := New("p", stageOf(t, "source", plugin.Source[int](src)),
		WithOptions(Options{Interval: time.Hour})).
		AddSink(stageOf(t, "sink.0", plugin.Sink[int](sink)))
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool { return p.Cycles() > 0 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestValidate(t *testing.T) {
	src := testutil.NewScriptedSource[int]()
	p := New("empty", stageOf(t, "source", plugin.Source[int](src)))
	err := p.Validate()
	assert.True(t, errors.IsInvalid(err))
	assert.ErrorIs(t, err, errors.ErrMissingConfig)
	assert.Error(t, p.Run(context.Background()))

	var nilSource *Stage[plugin.Source[int]]
	assert.Error(t, New("nil", nilSource).Validate())
}

func TestCycleReport_String(t *testing.T) {
	src := testutil.NewScriptedSource(testutil.Ok(1))
	p := New("p", stageOf(t, "source", plugin.Source[int](src))).
		AddSink(stageOf(t, "sink.0", plugin.Sink[int](testutil.NewRecordingSink[int]("out", plugin.Error))))
	defer p.Close()

	report := p.Cycle(context.Background())
	assert.Contains(t, report.String(), "p #1: source.get_output=success")
	require.Len(t, report.Failed(), 1)
	assert.Equal(t, "scripted error", report.Failed()[0].Error)
}
