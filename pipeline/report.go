package pipeline

import (
	"strconv"
	"strings"
	"time"

	"github.com/pbosetti/mads-plugin/plugin"
)

// StageReport is the outcome of one operation within a cycle
type StageReport struct {
	Stage     string
	Driver    string
	Operation string
	Status    plugin.ReturnType
	// Error is the last error detail, filled for Warning and worse
	Error string
}

// CycleReport collects the statuses of one cycle, in call order
type CycleReport struct {
	Pipeline string
	Cycle    int64
	Stages   []StageReport
	// Blob is set when the source produced a blob with its value
	Blob bool
	// Delivered is set when the value reached the sinks
	Delivered bool
	Duration  time.Duration
}

func (r *CycleReport) add(s StageHandle, operation string, status plugin.ReturnType) {
	sr := StageReport{
		Stage:     s.Name(),
		Driver:    s.Driver(),
		Operation: operation,
		Status:    status,
	}
	if status >= plugin.Warning {
		sr.Error = s.LastError()
	}
	r.Stages = append(r.Stages, sr)
}

// Worst returns the most severe status of the cycle
func (r CycleReport) Worst() plugin.ReturnType {
	worst := plugin.Success
	for _, s := range r.Stages {
		worst = plugin.Worst(worst, s.Status)
	}
	return worst
}

// SourceStatus returns the status of the source call
func (r CycleReport) SourceStatus() plugin.ReturnType {
	if len(r.Stages) == 0 {
		return plugin.Success
	}
	return r.Stages[0].Status
}

// Failed returns the operations that ended with Error or Critical
func (r CycleReport) Failed() []StageReport {
	var out []StageReport
	for _, s := range r.Stages {
		if s.Status.Failed() {
			out = append(out, s)
		}
	}
	return out
}

// String renders the report on one line, for logs and the CLI
func (r CycleReport) String() string {
	var b strings.Builder
	b.WriteString(r.Pipeline)
	b.WriteString(" #")
	b.WriteString(strconv.FormatInt(r.Cycle, 10))
	b.WriteString(": ")
	for i, s := range r.Stages {
		if i > 0 {
			b.WriteString(" -> ")
		}
		b.WriteString(s.Stage)
		b.WriteString(".")
		b.WriteString(s.Operation)
		b.WriteString("=")
		b.WriteString(s.Status.String())
	}
	return b.String()
}
