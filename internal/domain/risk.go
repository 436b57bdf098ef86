package domain

// Severity of a detected fraud pattern.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Weight returns the score contribution of the severity.
func (s Severity) Weight() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 3
	case SeverityHigh:
		return 7
	case SeverityCritical:
		return 10
	default:
		return 0
	}
}

// PatternType names a fraud rule.
type PatternType string

const (
	PatternSyntheticData       PatternType = "synthetic_data_suspected"
	PatternBruteForce          PatternType = "brute_force_pattern"
	PatternAutomatedSubmission PatternType = "automated_submission"
	PatternLowPhotoQuality     PatternType = "low_photo_quality"
	PatternReplayedFrames      PatternType = "replayed_frames"
)

// Pattern is one fraud signal raised by the risk scorer.
type Pattern struct {
	Type     PatternType `json:"type"`
	Severity Severity    `json:"severity"`
	Reason   string      `json:"reason"`
}

// RiskAssessment is computed once per request and never mutated.
type RiskAssessment struct {
	RiskScore int       `json:"risk_score"`
	Patterns  []Pattern `json:"patterns"`
	Detected  bool      `json:"detected"`
}

// NewRiskAssessment derives score and detected flag from the patterns.
func NewRiskAssessment(patterns []Pattern) RiskAssessment {
	if patterns == nil {
		patterns = []Pattern{}
	}
	score := 0
	for _, p := range patterns {
		score += p.Severity.Weight()
	}
	return RiskAssessment{
		RiskScore: score,
		Patterns:  patterns,
		Detected:  len(patterns) > 0,
	}
}

// HasCritical reports whether any pattern is critical.
func (a RiskAssessment) HasCritical() bool {
	for _, p := range a.Patterns {
		if p.Severity == SeverityCritical {
			return true
		}
	}
	return false
}
