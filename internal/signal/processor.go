package signal

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	// MinConfidence is reported when no intent keyword matched at all.
	MinConfidence = 0.3

	lowConfidenceThreshold = 0.5
	minInputLength         = 10
	maxInputLength         = 1000
)

// ErrInvalidEncoding is returned for input that is not valid UTF-8.
var ErrInvalidEncoding = errors.New("signal: input is not valid UTF-8")

var quotedPattern = regexp.MustCompile(`"([^"]+)"|“([^”]+)”|(?:^|\s)'([^']+)'`)

const tokenCutset = ".,;:!?\"'()[]{}“”"

// Processor classifies requirement text. It holds only read-only lexical
// tables and is safe for concurrent use.
type Processor struct {
	intents IntentKeywords
	domains []DomainRule
}

// NewProcessor returns a Processor with the built-in keyword and domain tables.
func NewProcessor() *Processor {
	return &Processor{
		intents: defaultIntentKeywords,
		domains: defaultDomainRules,
	}
}

// Process classifies text and assembles the full ProcessedSignal. context
// entries of the form "key=value" become keyed context signals; anything else
// is kept as a "note".
func (p *Processor) Process(text string, context []string) (ProcessedSignal, error) {
	if !utf8.ValidString(text) {
		return ProcessedSignal{}, ErrInvalidEncoding
	}

	classification := p.ClassifyIntent(text)
	anomalies := p.DetectAnomalies(text, classification)

	return ProcessedSignal{
		Raw:            text,
		Intent:         classification,
		ContextSignals: buildContextSignals(context, classification),
		Anomalies:      anomalies,
		Routing:        route(classification, anomalies),
	}, nil
}

// ClassifyIntent scores every intent against the text. Each keyword found
// contributes (1 + positionBonus*0.5) * weight, where positionBonus is
// 1 - firstIndex/wordCount, so earlier words count more.
func (p *Processor) ClassifyIntent(text string) IntentClassification {
	lower := strings.ToLower(text)
	words := tokenize(lower)

	scores := make(map[Intent]float64, len(IntentOrder))
	var keywords []string
	for _, intent := range IntentOrder {
		score := 0.0
		for _, kw := range sortedKeys(p.intents[intent]) {
			idx := indexOf(words, kw)
			if idx < 0 {
				continue
			}
			positionBonus := 1 - float64(idx)/float64(len(words))
			score += (1 + positionBonus*0.5) * p.intents[intent][kw]
			keywords = append(keywords, kw)
		}
		scores[intent] = score
	}

	best := IntentOrder[0]
	bestScore := scores[best]
	for _, intent := range IntentOrder[1:] {
		if scores[intent] > bestScore {
			best = intent
			bestScore = scores[intent]
		}
	}

	confidence := math.Min(bestScore/2, 1)
	if bestScore == 0 {
		confidence = MinConfidence
	}

	domain, domainKeywords := p.detectDomain(lower)

	return IntentClassification{
		Intent:     best,
		Confidence: confidence,
		Domain:     domain,
		Entities:   extractEntities(text, words, domainKeywords),
		Keywords:   keywords,
		Scores:     scores,
	}
}

// DetectAnomalies annotates a classification. The result is advisory.
func (p *Processor) DetectAnomalies(text string, c IntentClassification) []Anomaly {
	anomalies := []Anomaly{}

	if c.Confidence < lowConfidenceThreshold {
		anomalies = append(anomalies, Anomaly{
			Type:    AnomalyLowConfidence,
			Message: fmt.Sprintf("intent confidence %.2f is below %.2f", c.Confidence, lowConfidenceThreshold),
		})
	}

	hits := 0
	for _, intent := range IntentOrder {
		if c.Scores[intent] > 0 {
			hits++
		}
	}
	if hits >= 2 {
		anomalies = append(anomalies, Anomaly{
			Type:    AnomalyConflictingIntents,
			Message: fmt.Sprintf("%d intents matched keywords", hits),
		})
	}

	if len(c.Entities) == 0 && c.Intent != IntentQuery {
		anomalies = append(anomalies, Anomaly{
			Type:    AnomalyMissingEntities,
			Message: "no entities found for a " + string(c.Intent) + " request",
		})
	}

	length := utf8.RuneCountInString(strings.TrimSpace(text))
	if length < minInputLength {
		anomalies = append(anomalies, Anomaly{
			Type:    AnomalyInsufficientInput,
			Message: fmt.Sprintf("input has %d characters, at least %d expected", length, minInputLength),
		})
	}
	if length > maxInputLength {
		anomalies = append(anomalies, Anomaly{
			Type:    AnomalyComplexInput,
			Message: fmt.Sprintf("input has %d characters, consider splitting it", length),
		})
	}

	return anomalies
}

// detectDomain returns the first domain whose expressions match.
func (p *Processor) detectDomain(lower string) (string, []string) {
	for _, rule := range p.domains {
		for _, re := range rule.Patterns {
			if re.MatchString(lower) {
				return rule.Name, rule.Keywords
			}
		}
	}
	return "", nil
}

// extractEntities collects quoted substrings, then domain keywords present as
// whole words, in order of first occurrence and without duplicates.
func extractEntities(text string, words []string, domainKeywords []string) []string {
	entities := []string{}
	seen := make(map[string]bool)
	add := func(e string) {
		e = strings.TrimSpace(e)
		key := strings.ToLower(e)
		if e == "" || seen[key] {
			return
		}
		seen[key] = true
		entities = append(entities, e)
	}

	for _, m := range quotedPattern.FindAllStringSubmatch(text, -1) {
		for _, group := range m[1:] {
			if group != "" {
				add(group)
			}
		}
	}

	if len(domainKeywords) > 0 {
		known := make(map[string]bool, len(domainKeywords))
		for _, kw := range domainKeywords {
			known[kw] = true
		}
		for _, w := range words {
			if known[w] {
				add(w)
			}
		}
	}

	return entities
}

func buildContextSignals(context []string, c IntentClassification) []ContextSignal {
	signals := make([]ContextSignal, 0, len(context)+len(c.Entities)+1)
	for _, item := range context {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		key, value, ok := strings.Cut(item, "=")
		if !ok {
			key, value = "note", item
		}
		signals = append(signals, ContextSignal{Source: "caller", Key: strings.TrimSpace(key), Value: strings.TrimSpace(value)})
	}
	if c.Domain != "" {
		signals = append(signals, ContextSignal{Source: "derived", Key: "domain", Value: c.Domain})
	}
	for _, e := range c.Entities {
		signals = append(signals, ContextSignal{Source: "derived", Key: "entity", Value: e})
	}
	return signals
}

func route(c IntentClassification, anomalies []Anomaly) RoutingDecision {
	d := RoutingDecision{Route: routes[c.Intent], Reason: fmt.Sprintf("%s intent at %.2f confidence", c.Intent, c.Confidence)}
	for _, a := range anomalies {
		if a.Type == AnomalyLowConfidence || a.Type == AnomalyInsufficientInput {
			d.NeedsClarification = true
			d.Reason += "; " + a.Message
		}
	}
	return d
}

// tokenize splits on whitespace and strips surrounding punctuation. Empty
// tokens are kept out so positions reflect real words.
func tokenize(lower string) []string {
	fields := strings.Fields(lower)
	words := make([]string, 0, len(fields))
	for _, f := range fields {
		if w := strings.Trim(f, tokenCutset); w != "" {
			words = append(words, w)
		}
	}
	return words
}

func indexOf(words []string, kw string) int {
	for i, w := range words {
		if w == kw {
			return i
		}
	}
	return -1
}
