package suggest

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Escorpio024/scribe-ia-aurora/internal/record"
)

var (
	// ErrEmptyText is returned when there is nothing to write
	ErrEmptyText = errors.New("suggestion has no text to apply")

	// ErrActionNotApplicable is returned when an action is not among the
	// suggestion's inferred actions or lacks the fields it needs
	ErrActionNotApplicable = errors.New("action not applicable to suggestion")
)

// Outcome tells which branch an apply took
type Outcome string

const (
	OutcomeAdded    Outcome = "added"
	OutcomeReplaced Outcome = "replaced"
	OutcomeAppended Outcome = "appended"
)

// Result describes one applied action
type Result struct {
	Action  Action         `json:"action"`
	Outcome Outcome        `json:"outcome"`
	Section record.Section `json:"section"`
	Index   int            `json:"index"`
	Detail  string         `json:"detail"`
}

// ApplyAdd files text as a prescription when it looks like a drug order
// and as a general order otherwise.
func ApplyAdd(r *record.Record, text string) (Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Result{}, ErrEmptyText
	}

	res := Result{Action: ActionAdd, Outcome: OutcomeAdded, Detail: text}
	if IsDrugLike(text) {
		r.Prescriptions = append(r.Prescriptions, record.Item{Detail: text})
		res.Section = record.SectionPrescriptions
		res.Index = len(r.Prescriptions) - 1
	} else {
		r.Orders = append(r.Orders, record.Item{Detail: text})
		res.Section = record.SectionOrders
		res.Index = len(r.Orders) - 1
	}
	return res, nil
}

// ApplyReplace replaces the first prescription whose detail contains
// current, case-insensitively. Without a match, proposed is appended so
// the request is never lost; Outcome tells which happened.
func ApplyReplace(r *record.Record, current, proposed string) (Result, error) {
	proposed = strings.TrimSpace(proposed)
	if proposed == "" {
		return Result{}, ErrEmptyText
	}

	res := Result{Action: ActionReplace, Section: record.SectionPrescriptions, Detail: proposed}
	needle := strings.ToLower(strings.TrimSpace(current))
	if needle != "" {
		for i, it := range r.Prescriptions {
			if strings.Contains(strings.ToLower(it.Detail), needle) {
				r.Prescriptions[i] = record.Item{Detail: proposed}
				res.Outcome = OutcomeReplaced
				res.Index = i
				return res, nil
			}
		}
	}

	r.Prescriptions = append(r.Prescriptions, record.Item{Detail: proposed})
	res.Outcome = OutcomeAppended
	res.Index = len(r.Prescriptions) - 1
	return res, nil
}

// Apply performs action for s on r. The action must be one InferActions
// allows for s.
func Apply(r *record.Record, s Suggestion, action Action) (Result, error) {
	if !hasAction(InferActions(s), action) {
		return Result{}, fmt.Errorf("%w: %s on %q", ErrActionNotApplicable, action, s.Text())
	}

	switch action {
	case ActionAdd:
		text := s.Proposed
		if strings.TrimSpace(text) == "" {
			text = s.Message
		}
		return ApplyAdd(r, text)
	case ActionReplace:
		if strings.TrimSpace(s.Current) == "" {
			return Result{}, fmt.Errorf("%w: replace without current text", ErrActionNotApplicable)
		}
		return ApplyReplace(r, s.Current, s.Proposed)
	}
	return Result{}, fmt.Errorf("%w: %s", ErrActionNotApplicable, action)
}
