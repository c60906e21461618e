// Package pipeline - requirement clarity scoring.
//
// Clarity is advisory: a vague requirement still gets a prediction, but the
// result carries a 0-100 score and the questions that would sharpen it.
package pipeline

import (
	"math"

	"github.com/HendryAvila/blueprint/internal/signal"
)

// ClarityThreshold is the score at which a requirement counts as clear.
const ClarityThreshold = 60

// ClarityDimension represents one axis of clarity evaluation.
type ClarityDimension struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Weight      int    `json:"weight"`  // relative importance (1-10)
	Covered     bool   `json:"covered"` // whether the requirement addresses it
	Score       int    `json:"score"`   // 0-100 for this dimension
	question    string
}

// DefaultDimensions returns the clarity dimensions, all uncovered.
func DefaultDimensions() []ClarityDimension {
	return []ClarityDimension{
		{
			Name:        "intent",
			Description: "Is it clear whether to create, change, find, check or delete something?",
			Weight:      10,
			question:    "What should happen: build a new module, change an existing one, or something else?",
		},
		{
			Name:        "domain",
			Description: "Is the business area identifiable?",
			Weight:      9,
			question:    "Which area is this for: assessments, incidents, actions, inspections, training or maintenance?",
		},
		{
			Name:        "entities",
			Description: "Are the things the module records named?",
			Weight:      7,
			question:    "What are the key things this module records, for example hazards, equipment or witnesses?",
		},
		{
			Name:        "detail",
			Description: "Is the requirement neither a fragment nor an essay?",
			Weight:      5,
			question:    "Can you describe the requirement in one or two sentences?",
		},
	}
}

// ClarityReport contains the clarity analysis of one requirement.
type ClarityReport struct {
	Dimensions   []ClarityDimension `json:"dimensions"`
	OverallScore int                `json:"overall_score"`
	Questions    []ClarityQuestion  `json:"questions,omitempty"`
	GatePassed   bool               `json:"gate_passed"`
}

// ClarityQuestion is a question generated to resolve an ambiguity.
type ClarityQuestion struct {
	Dimension string `json:"dimension"`
	Question  string `json:"question"`
	Priority  string `json:"priority"` // high | medium | low
}

// AssessClarity scores a processed signal against DefaultDimensions.
func AssessClarity(sig signal.ProcessedSignal) ClarityReport {
	dims := DefaultDimensions()
	for i := range dims {
		d := &dims[i]
		switch d.Name {
		case "intent":
			d.Score = int(math.Round(sig.Intent.Confidence * 100))
			d.Covered = !sig.HasAnomaly(signal.AnomalyLowConfidence)
		case "domain":
			d.Covered = sig.Intent.Domain != ""
			if d.Covered {
				d.Score = 100
			}
		case "entities":
			d.Covered = len(sig.Intent.Entities) > 0
			d.Score = int(math.Min(100, float64(50*len(sig.Intent.Entities))))
		case "detail":
			d.Covered = !sig.HasAnomaly(signal.AnomalyInsufficientInput) && !sig.HasAnomaly(signal.AnomalyComplexInput)
			if d.Covered {
				d.Score = 100
			}
			if sig.HasAnomaly(signal.AnomalyComplexInput) {
				d.question = "Can you split this into smaller requests, one module each?"
			}
		}
	}

	report := ClarityReport{Dimensions: dims, OverallScore: CalculateScore(dims)}
	for _, d := range UncoveredDimensions(dims) {
		report.Questions = append(report.Questions, ClarityQuestion{
			Dimension: d.Name,
			Question:  d.question,
			Priority:  priority(d.Weight),
		})
	}
	report.GatePassed = report.OverallScore >= ClarityThreshold
	return report
}

// CalculateScore computes the weighted overall score from dimensions.
func CalculateScore(dimensions []ClarityDimension) int {
	totalWeight := 0
	weightedSum := 0

	for _, d := range dimensions {
		totalWeight += d.Weight
		weightedSum += d.Score * d.Weight
	}

	if totalWeight == 0 {
		return 0
	}

	return weightedSum / totalWeight
}

// UncoveredDimensions returns dimensions that haven't been addressed yet.
func UncoveredDimensions(dimensions []ClarityDimension) []ClarityDimension {
	var uncovered []ClarityDimension
	for _, d := range dimensions {
		if !d.Covered {
			uncovered = append(uncovered, d)
		}
	}
	return uncovered
}

func priority(weight int) string {
	switch {
	case weight >= 8:
		return "high"
	case weight >= 6:
		return "medium"
	default:
		return "low"
	}
}
