package prediction

import (
	"strings"
	"unicode"
)

// Slugify lowercases s and joins its alphanumeric runs with underscores.
func Slugify(s string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}
	return b.String()
}

// Humanize turns "assessor_email" into "Assessor Email".
func Humanize(s string) string {
	words := strings.FieldsFunc(s, func(r rune) bool {
		return r == '_' || r == '-' || unicode.IsSpace(r)
	})
	for i, w := range words {
		rs := []rune(strings.ToLower(w))
		rs[0] = unicode.ToUpper(rs[0])
		words[i] = string(rs)
	}
	return strings.Join(words, " ")
}

// InferFieldType guesses a field type from its name.
func InferFieldType(name string) string {
	n := strings.ToLower(name)
	switch {
	case strings.Contains(n, "date"):
		return TypeDate
	case strings.Contains(n, "email"):
		return TypeEmail
	case strings.Contains(n, "number"), strings.Contains(n, "count"):
		return TypeNumber
	case strings.Contains(n, "description"), strings.Contains(n, "comment"):
		return TypeTextarea
	case strings.Contains(n, "status"), strings.Contains(n, "type"), strings.Contains(n, "category"):
		return TypeSelect
	default:
		return TypeText
	}
}

type lookup struct {
	substr string
	value  string
}

// Ordered: first substring found in the step name wins.
var stepTypes = []lookup{
	{"approv", "approval"},
	{"review", "review"},
	{"sign", "signoff"},
	{"verif", "verification"},
	{"notify", "notification"},
	{"submit", "submission"},
	{"report", "submission"},
	{"raise", "submission"},
	{"investigat", "investigation"},
	{"schedule", "scheduling"},
	{"assign", "assignment"},
}

var stepAssignees = []lookup{
	{"supervisor", "supervisor"},
	{"manager", "manager"},
	{"technician", "technician"},
	{"trainer", "trainer"},
	{"team", "team"},
	{"approv", "approver"},
	{"investigat", "investigator"},
	{"inspect", "inspector"},
}

func lookupOr(table []lookup, name, fallback string) string {
	n := strings.ToLower(name)
	for _, l := range table {
		if strings.Contains(n, l.substr) {
			return l.value
		}
	}
	return fallback
}

// InferStepType maps a workflow step name to its type, defaulting to "task".
func InferStepType(name string) string { return lookupOr(stepTypes, name, "task") }

// InferAssignee maps a workflow step name to an assignee, defaulting to "owner".
func InferAssignee(name string) string { return lookupOr(stepAssignees, name, "owner") }
