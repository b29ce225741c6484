package harness

import "github.com/roach88/ifuzz/internal/engine"

// CorpusEntry is one stored sequence of a session, decoded for display.
type CorpusEntry struct {
	Seq      int64    `json:"seq"`
	ID       string   `json:"id"`
	Mode     string   `json:"mode"`
	Failures int      `json:"failures"`
	Calls    []string `json:"calls"`
}

// Result is the outcome of a scenario.
type Result struct {
	// Pass is true when every assertion held.
	Pass bool `json:"pass"`

	// Errors contains assertion failure messages.
	Errors []string `json:"errors,omitempty"`

	// Stats is the engine's report at the end of the session.
	Stats engine.Stats `json:"stats"`

	// Corpus lists the stored sequences in execution order.
	Corpus []CorpusEntry `json:"corpus"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Errors: []string{},
		Corpus: []CorpusEntry{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// CorpusIDs returns the content hashes of the corpus in order.
func (r *Result) CorpusIDs() []string {
	ids := make([]string, len(r.Corpus))
	for i, e := range r.Corpus {
		ids[i] = e.ID
	}
	return ids
}
