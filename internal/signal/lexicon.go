package signal

import "regexp"

// IntentKeywords holds per-intent keyword weights.
type IntentKeywords map[Intent]map[string]float64

// DomainRule is one entry of the ordered domain list. The first rule with any
// matching expression wins.
type DomainRule struct {
	Name     string
	Patterns []*regexp.Regexp
	Keywords []string // whole-word literals extracted as entities
}

var defaultIntentKeywords = IntentKeywords{
	IntentCreate: {
		"create":   1.0,
		"build":    1.0,
		"generate": 0.9,
		"make":     0.8,
		"design":   0.8,
		"new":      0.7,
		"setup":    0.7,
		"add":      0.6,
	},
	IntentModify: {
		"modify": 1.0,
		"change": 1.0,
		"update": 1.0,
		"edit":   1.0,
		"adjust": 0.8,
		"rename": 0.8,
		"extend": 0.7,
	},
	IntentQuery: {
		"list":   0.9,
		"find":   0.9,
		"search": 0.9,
		"show":   0.8,
		"view":   0.8,
		"get":    0.7,
		"what":   0.6,
	},
	IntentValidate: {
		"validate": 1.0,
		"verify":   1.0,
		"check":    0.9,
		"review":   0.8,
		"test":     0.7,
	},
	IntentDelete: {
		"delete":  1.0,
		"remove":  1.0,
		"destroy": 1.0,
		"drop":    0.8,
		"archive": 0.6,
	},
}

func mustCompile(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile(e)
	}
	return out
}

var defaultDomainRules = []DomainRule{
	{
		Name:     "assessment",
		Patterns: mustCompile(`\bassess(ment)?s?\b`, `\brisk\b`, `\bevaluat\w*`, `\bsurvey\b`, `\bquestionnaire\b`),
		Keywords: []string{"assessment", "risk", "hazard", "likelihood", "severity", "control", "rating", "score"},
	},
	{
		Name:     "incident",
		Patterns: mustCompile(`\bincident\w*`, `\baccident\w*`, `\binjur\w*`, `\bnear[- ]miss\w*`),
		Keywords: []string{"incident", "accident", "injury", "witness", "near-miss", "location", "investigation"},
	},
	{
		Name:     "action",
		Patterns: mustCompile(`\bcorrective\b`, `\bpreventive\b`, `\baction\s+(item|plan)s?\b`, `\bcapa\b`, `\bfollow[- ]up\b`),
		Keywords: []string{"action", "corrective", "preventive", "owner", "deadline", "priority"},
	},
	{
		Name:     "inspection",
		Patterns: mustCompile(`\binspect\w*`, `\baudit\w*`, `\bchecklist\w*`),
		Keywords: []string{"inspection", "checklist", "audit", "finding", "site", "area"},
	},
	{
		Name:     "training",
		Patterns: mustCompile(`\btraining\b`, `\bcourse\w*`, `\bcertif\w*`, `\bcompetenc\w*`),
		Keywords: []string{"training", "course", "certificate", "trainee", "trainer", "competency"},
	},
	{
		Name:     "maintenance",
		Patterns: mustCompile(`\bmaintenance\b`, `\brepair\w*`, `\bwork\s+orders?\b`, `\bequipment\b`),
		Keywords: []string{"maintenance", "equipment", "asset", "repair", "downtime", "part"},
	},
}

var routes = map[Intent]string{
	IntentCreate:   "prediction",
	IntentModify:   "modification",
	IntentQuery:    "query",
	IntentValidate: "validation",
	IntentDelete:   "deletion",
}
