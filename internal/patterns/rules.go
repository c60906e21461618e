package patterns

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/HendryAvila/blueprint/internal/signal"
)

// compiledRule is an ApplicabilityRule with its operands prepared once at
// registration.
type compiledRule struct {
	ApplicabilityRule
	set map[string]bool // for "in"
	re  *regexp.Regexp  // for "matches"
}

func compileRules(rules []ApplicabilityRule) ([]compiledRule, error) {
	out := make([]compiledRule, 0, len(rules))
	for i, r := range rules {
		switch r.Field {
		case FieldIntent, FieldDomain, FieldEntities, FieldKeywords:
		default:
			return nil, fmt.Errorf("rule %d: unknown field %q", i, r.Field)
		}

		cr := compiledRule{ApplicabilityRule: r}
		switch r.Operator {
		case OpEquals, OpNotEquals, OpContains:
		case OpIn:
			cr.set = make(map[string]bool)
			for _, v := range strings.Split(r.Value, ",") {
				if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
					cr.set[v] = true
				}
			}
		case OpMatches:
			re, err := regexp.Compile("(?i)" + r.Value)
			if err != nil {
				return nil, fmt.Errorf("rule %d: %w", i, err)
			}
			cr.re = re
		default:
			return nil, fmt.Errorf("rule %d: unknown operator %q", i, r.Operator)
		}
		out = append(out, cr)
	}
	return out, nil
}

// fieldValues reads a rule field from the classification. Scalar fields yield
// at most one value.
func fieldValues(field string, c signal.IntentClassification) []string {
	switch field {
	case FieldIntent:
		return []string{string(c.Intent)}
	case FieldDomain:
		if c.Domain == "" {
			return nil
		}
		return []string{c.Domain}
	case FieldEntities:
		return c.Entities
	case FieldKeywords:
		return c.Keywords
	}
	return nil
}

// satisfied reports whether any value of the field meets the rule. not_equals
// holds when no value equals the operand, including when the field is empty.
func (r compiledRule) satisfied(c signal.IntentClassification) bool {
	values := fieldValues(r.Field, c)
	want := strings.ToLower(r.Value)

	if r.Operator == OpNotEquals {
		for _, v := range values {
			if strings.EqualFold(v, r.Value) {
				return false
			}
		}
		return true
	}

	for _, v := range values {
		lv := strings.ToLower(v)
		switch r.Operator {
		case OpEquals:
			if lv == want {
				return true
			}
		case OpContains:
			if strings.Contains(lv, want) {
				return true
			}
		case OpIn:
			if r.set[lv] {
				return true
			}
		case OpMatches:
			if r.re.MatchString(v) {
				return true
			}
		}
	}
	return false
}

func ruleScore(rules []compiledRule, c signal.IntentClassification) float64 {
	score := 0.0
	for _, r := range rules {
		if r.satisfied(c) {
			score += r.Weight
		}
	}
	return score
}
