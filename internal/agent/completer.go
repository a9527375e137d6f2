package agent

import "context"

// Completer is the single LLM capability the agent adapters need.
// *llm.Client satisfies it.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}
