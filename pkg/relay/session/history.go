package session

import (
	"sync"

	"github.com/kaiwa-labs/kaiwa-relay/pkg/llm"
)

// history is the ordered conversation of one call. The first turn is always
// the system instruction and is never evicted. User turns are appended by the
// dispatch goroutine, assistant turns by the generation goroutine, hence the
// mutex.
type history struct {
	mu    sync.Mutex
	turns []llm.Message
}

func newHistory(systemPrompt string) *history {
	return &history{
		turns: append(make([]llm.Message, 0, 16), llm.Message{Role: llm.RoleSystem, Content: systemPrompt}),
	}
}

func (h *history) appendUser(text string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = append(h.turns, llm.Message{Role: llm.RoleUser, Content: text})
}

func (h *history) appendAssistant(text string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = append(h.turns, llm.Message{Role: llm.RoleAssistant, Content: text})
}

func (h *history) snapshot() []llm.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]llm.Message, len(h.turns))
	copy(out, h.turns)
	return out
}

func (h *history) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.turns)
}

// compact bounds the history: once it grows past maxTurns it keeps the system
// turn plus the keepRecent most recent turns, discarding the middle
// irrecoverably.
func (h *history) compact(maxTurns, keepRecent int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if maxTurns <= 0 || keepRecent <= 0 || len(h.turns) <= maxTurns {
		return
	}
	compacted := make([]llm.Message, 0, 1+keepRecent)
	compacted = append(compacted, h.turns[0])
	compacted = append(compacted, h.turns[len(h.turns)-keepRecent:]...)
	h.turns = compacted
}
