// Package signal classifies free-text requirements into an intent, a business
// domain and a set of entities, and annotates the result with advisory anomalies.
//
// Classification is purely lexical: keyword weights for intents, ordered regular
// expression sets for domains. Nothing here fails on ambiguous input; ambiguity
// surfaces as low confidence plus an anomaly.
package signal

// Intent is the action a requirement asks for.
type Intent string

const (
	IntentCreate   Intent = "CREATE"
	IntentModify   Intent = "MODIFY"
	IntentQuery    Intent = "QUERY"
	IntentValidate Intent = "VALIDATE"
	IntentDelete   Intent = "DELETE"
)

// IntentOrder is the enumeration order used for tie-breaking: on equal scores
// the intent listed first wins.
var IntentOrder = []Intent{IntentCreate, IntentModify, IntentQuery, IntentValidate, IntentDelete}

// IntentClassification is the lexical reading of a requirement.
type IntentClassification struct {
	Intent     Intent             `json:"intent"`
	Confidence float64            `json:"confidence"`
	Domain     string             `json:"domain,omitempty"`
	Entities   []string           `json:"entities"`
	Keywords   []string           `json:"keywords,omitempty"` // intent keywords that matched
	Scores     map[Intent]float64 `json:"scores,omitempty"`
}

// AnomalyType names an advisory annotation on a signal.
type AnomalyType string

const (
	AnomalyLowConfidence      AnomalyType = "low_confidence"
	AnomalyConflictingIntents AnomalyType = "conflicting_intents"
	AnomalyMissingEntities    AnomalyType = "missing_entities"
	AnomalyInsufficientInput  AnomalyType = "insufficient_input"
	AnomalyComplexInput       AnomalyType = "complex_input"
)

// Anomaly is advisory. It never blocks the pipeline.
type Anomaly struct {
	Type    AnomalyType `json:"type"`
	Message string      `json:"message"`
}

// ContextSignal is one piece of context attached to a signal, either supplied
// by the caller or derived from the text.
type ContextSignal struct {
	Source string `json:"source"` // "caller" | "derived"
	Key    string `json:"key"`
	Value  string `json:"value"`
}

// RoutingDecision says which downstream handler the intent points at.
type RoutingDecision struct {
	Route              string `json:"route"`
	NeedsClarification bool   `json:"needs_clarification"`
	Reason             string `json:"reason"`
}

// ProcessedSignal is created once per pipeline run and never mutated.
type ProcessedSignal struct {
	Raw            string               `json:"raw"`
	Intent         IntentClassification `json:"intent_classification"`
	ContextSignals []ContextSignal      `json:"context_signals"`
	Anomalies      []Anomaly            `json:"anomalies"`
	Routing        RoutingDecision      `json:"routing_decision"`
}

// HasAnomaly reports whether the signal carries the given anomaly.
func (s ProcessedSignal) HasAnomaly(t AnomalyType) bool {
	for _, a := range s.Anomalies {
		if a.Type == t {
			return true
		}
	}
	return false
}
