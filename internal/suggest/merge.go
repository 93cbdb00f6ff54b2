package suggest

import (
	"regexp"
	"strings"
)

// MergeSets returns builtIn followed by every external suggestion whose key
// is not already present. builtIn order is kept and novel external
// suggestions are appended in their given order. External suggestions
// with an empty key carry no text and are skipped.
func MergeSets(builtIn, external []Suggestion) []Suggestion {
	out := make([]Suggestion, 0, len(builtIn)+len(external))
	seen := make(map[string]struct{}, len(builtIn)+len(external))

	for _, s := range builtIn {
		out = append(out, s)
		seen[s.Key()] = struct{}{}
	}
	for _, s := range external {
		key := s.Key()
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, s)
	}
	return out
}

var (
	doseUnit  = `\d+(?:[.,]\d+)?\s*(?:mg|mcg|µg|g|ml|ui|u|meq|gotas|tabletas?|comprimidos?|c[aá]psulas?|puffs?|inhalaciones)\b`
	route     = `\b(?:vo|iv|im|sc|sl|oral|intravenos[ao]|intramuscular|subcut[aá]ne[ao]|inhalad[ao]|t[oó]pic[ao]|sublingual)\b`
	frequency = `(?:\bc/\s*\d+\s*h(?:oras)?\b|\bcada\s+\d+\s*(?:h|horas)\b|\bq\d+h\b|\b(?:bid|tid|qid|qd|prn)\b|\bdiari[ao]\b|\bal\s+d[ií]a|\bveces\s+al\s+d[ií]a)`

	drugPattern = regexp.MustCompile(`(?i)` + doseUnit + `|` + route + `|` + frequency)
)

// IsDrugLike reports whether text carries a dosage unit, an administration
// route or a dosing frequency.
func IsDrugLike(text string) bool {
	return drugPattern.MatchString(text)
}

// InferActions returns the actions applicable to s, unioned with the ones
// it declares. add applies to medication suggestions or drug-like text;
// replace needs a medication or alternative kind plus both current and
// proposed text.
func InferActions(s Suggestion) []Action {
	kind := strings.ToLower(s.Kind)
	medication := strings.Contains(kind, "medic")
	alternative := strings.Contains(kind, "alternativ")

	var inferred []Action
	if medication || IsDrugLike(s.Proposed) || IsDrugLike(s.Message) {
		inferred = append(inferred, ActionAdd)
	}
	if (medication || alternative) && strings.TrimSpace(s.Current) != "" && strings.TrimSpace(s.Proposed) != "" {
		inferred = append(inferred, ActionReplace)
	}

	out := make([]Action, 0, 2)
	for _, a := range []Action{ActionAdd, ActionReplace} {
		if hasAction(inferred, a) || hasAction(s.Actions, a) {
			out = append(out, a)
		}
	}
	return out
}

func hasAction(actions []Action, a Action) bool {
	for _, have := range actions {
		if have == a {
			return true
		}
	}
	return false
}
