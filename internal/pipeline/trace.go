package pipeline

import "fmt"

// trace accumulates the human-readable reasoning steps surfaced alongside an
// answer, in execution order.
type trace struct {
	steps []string
}

func (t *trace) add(format string, args ...interface{}) {
	t.steps = append(t.steps, fmt.Sprintf(format, args...))
}

func (t *trace) Steps() []string {
	return t.steps
}
