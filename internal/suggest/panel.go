package suggest

import (
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/Escorpio024/scribe-ia-aurora/internal/record"
)

// ErrNotFound is returned for suggestion ids absent from the panel
var ErrNotFound = errors.New("suggestion not found")

// Panel is the active list of suggestions for one consultation. It has a
// single owner and no locking.
type Panel struct {
	items []Suggestion
}

// NewPanel creates a panel holding builtIn, with ids assigned and actions
// inferred.
func NewPanel(builtIn []Suggestion) *Panel {
	p := &Panel{}
	p.items = prepare(builtIn, SourceBuiltIn)
	return p
}

func prepare(list []Suggestion, source string) []Suggestion {
	out := make([]Suggestion, len(list))
	for i, s := range list {
		if s.ID == "" {
			s.ID = uuid.NewString()
		}
		if s.Source == "" {
			s.Source = source
		}
		s.Actions = InferActions(s)
		out[i] = s
	}
	return out
}

// Merge adds the external suggestions not already present and returns how
// many were added.
func (p *Panel) Merge(external []Suggestion) int {
	before := len(p.items)
	p.items = MergeSets(p.items, prepare(external, SourceExternal))
	return len(p.items) - before
}

// Items returns a copy of the active suggestions
func (p *Panel) Items() []Suggestion {
	return slices.Clone(p.items)
}

// Len returns the number of active suggestions
func (p *Panel) Len() int {
	return len(p.items)
}

// Get returns the suggestion with id
func (p *Panel) Get(id string) (Suggestion, bool) {
	i := p.index(id)
	if i < 0 {
		return Suggestion{}, false
	}
	return p.items[i], true
}

// Dismiss removes a suggestion from the panel only. It reports whether the
// id was present.
func (p *Panel) Dismiss(id string) bool {
	i := p.index(id)
	if i < 0 {
		return false
	}
	p.items = slices.Delete(p.items, i, i+1)
	return true
}

// Accept applies action for the suggestion id to r and removes it from the
// panel. On error neither the panel nor r is changed.
func (p *Panel) Accept(id string, action Action, r *record.Record) (Result, error) {
	i := p.index(id)
	if i < 0 {
		return Result{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	res, err := Apply(r, p.items[i], action)
	if err != nil {
		return Result{}, err
	}
	p.items = slices.Delete(p.items, i, i+1)
	return res, nil
}

func (p *Panel) index(id string) int {
	return slices.IndexFunc(p.items, func(s Suggestion) bool { return s.ID == id })
}
