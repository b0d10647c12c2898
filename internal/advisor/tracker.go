package advisor

import (
	"fmt"
	"strings"
	"sync"
)

// SessionStats is a point-in-time snapshot of advisor usage.
type SessionStats struct {
	TotalTokens      int64   `json:"total_tokens"`
	PromptTokens     int64   `json:"prompt_tokens"`
	CompletionTokens int64   `json:"completion_tokens"`
	APICalls         int64   `json:"api_calls"`
	TotalCost        float64 `json:"total_cost"`
	Model            string  `json:"model"`
}

// String renders a one-line usage summary.
func (s SessionStats) String() string {
	return fmt.Sprintf("AI usage: %d tokens (%d in / %d out) • %d calls • $%.4f",
		s.TotalTokens, s.PromptTokens, s.CompletionTokens, s.APICalls, s.TotalCost)
}

// Tracker accumulates token counts and estimated cost across a
// process lifetime. It is safe for concurrent use and never fails:
// unknown models simply contribute zero cost.
type Tracker struct {
	mu    sync.Mutex
	stats SessionStats
}

// NewTracker returns a Tracker labeled with the configured model.
func NewTracker(model string) *Tracker {
	return &Tracker{stats: SessionStats{Model: model}}
}

// Record adds usage from one completion call.
func (t *Tracker) Record(model string, promptTokens, completionTokens, totalTokens int64) {
	cost := estimateCost(model, promptTokens, completionTokens)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats.PromptTokens += promptTokens
	t.stats.CompletionTokens += completionTokens
	t.stats.TotalTokens += totalTokens
	t.stats.TotalCost += cost
	t.stats.APICalls++
}

// Snapshot returns a copy of the current stats.
func (t *Tracker) Snapshot() SessionStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}

// String renders the current usage summary.
func (t *Tracker) String() string {
	return t.Snapshot().String()
}

// pricing is USD per 1000 tokens.
type pricing struct {
	prompt     float64
	completion float64
}

var modelPricing = map[string]pricing{
	"gpt-4o-mini":   {prompt: 0.00015, completion: 0.0006},
	"gpt-4o":        {prompt: 0.0025, completion: 0.01},
	"gpt-4.1-mini":  {prompt: 0.0004, completion: 0.0016},
	"gpt-3.5-turbo": {prompt: 0.0005, completion: 0.0015},
}

// estimateCost prices a call from the static table. Dated variants
// like gpt-4o-mini-2024-07-18 match their base model; the longest
// matching entry wins so gpt-4o-mini never prices as gpt-4o.
func estimateCost(model string, promptTokens, completionTokens int64) float64 {
	var best string
	for name := range modelPricing {
		if model != name && !strings.HasPrefix(model, name+"-") {
			continue
		}
		if len(name) > len(best) {
			best = name
		}
	}
	if best == "" {
		return 0
	}
	p := modelPricing[best]
	return float64(promptTokens)/1000*p.prompt + float64(completionTokens)/1000*p.completion
}
