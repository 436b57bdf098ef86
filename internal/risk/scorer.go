package risk

import (
	"fmt"
	"time"

	"github.com/saturnino-fabrica-de-software/veritas/internal/domain"
)

// Thresholds configures the fraud rules. The defaults carry over uncalibrated
// values and are meant to be tuned.
type Thresholds struct {
	// SyntheticConfidence: any stage confidence strictly above it is suspicious (0-100 scale).
	SyntheticConfidence float64
	// MaxPreviousAttempts: more attempts than this is a brute-force pattern.
	MaxPreviousAttempts int
	// MinSubmissionDuration: a faster session looks automated.
	MinSubmissionDuration time.Duration
}

// DefaultThresholds returns the thresholds used when none are configured.
func DefaultThresholds() Thresholds {
	return Thresholds{
		SyntheticConfidence:   99,
		MaxPreviousAttempts:   5,
		MinSubmissionDuration: 2000 * time.Millisecond,
	}
}

// Input is everything the scorer looks at. Stage results may be partial.
type Input struct {
	PreviousAttemptCount int
	StartedAt            time.Time
	SubmittedAt          time.Time
	StageResults         []domain.StageResult
}

// rule inspects the input and returns a pattern when it fires.
type rule func(in Input, t Thresholds) (domain.Pattern, bool)

// Scorer evaluates the fraud rules. It holds no state besides its thresholds.
type Scorer struct {
	thresholds Thresholds
	rules      []rule
}

// NewScorer creates a new Scorer
func NewScorer(t Thresholds) *Scorer {
	return &Scorer{
		thresholds: t,
		rules: []rule{
			syntheticData,
			bruteForce,
			automatedSubmission,
			lowPhotoQuality,
			replayedFrames,
		},
	}
}

// Assess is a pure function of its input; pattern order follows rule order.
func (s *Scorer) Assess(in Input) domain.RiskAssessment {
	patterns := make([]domain.Pattern, 0, len(s.rules))
	for _, r := range s.rules {
		if p, ok := r(in, s.thresholds); ok {
			patterns = append(patterns, p)
		}
	}
	return domain.NewRiskAssessment(patterns)
}

func syntheticData(in Input, t Thresholds) (domain.Pattern, bool) {
	for _, r := range in.StageResults {
		if r.Errored() || r.Skipped() {
			continue
		}
		if r.Confidence > t.SyntheticConfidence {
			return domain.Pattern{
				Type:     domain.PatternSyntheticData,
				Severity: domain.SeverityMedium,
				Reason:   fmt.Sprintf("%s stage confidence %.2f above %.2f", r.Stage, r.Confidence, t.SyntheticConfidence),
			}, true
		}
	}
	return domain.Pattern{}, false
}

func bruteForce(in Input, t Thresholds) (domain.Pattern, bool) {
	if in.PreviousAttemptCount <= t.MaxPreviousAttempts {
		return domain.Pattern{}, false
	}
	return domain.Pattern{
		Type:     domain.PatternBruteForce,
		Severity: domain.SeverityHigh,
		Reason:   fmt.Sprintf("%d previous attempts (max %d)", in.PreviousAttemptCount, t.MaxPreviousAttempts),
	}, true
}

func automatedSubmission(in Input, t Thresholds) (domain.Pattern, bool) {
	if in.SubmittedAt.IsZero() {
		return domain.Pattern{}, false
	}
	if in.StartedAt.IsZero() {
		// a client that hides its session start cannot prove it took human time
		return domain.Pattern{
			Type:     domain.PatternAutomatedSubmission,
			Severity: domain.SeverityMedium,
			Reason:   "session start missing",
		}, true
	}
	elapsed := in.SubmittedAt.Sub(in.StartedAt)
	if elapsed >= t.MinSubmissionDuration {
		return domain.Pattern{}, false
	}
	return domain.Pattern{
		Type:     domain.PatternAutomatedSubmission,
		Severity: domain.SeverityMedium,
		Reason:   fmt.Sprintf("session completed in %dms (min %dms)", elapsed.Milliseconds(), t.MinSubmissionDuration.Milliseconds()),
	}, true
}

func lowPhotoQuality(in Input, _ Thresholds) (domain.Pattern, bool) {
	for _, r := range in.StageResults {
		if r.Stage != domain.StageFace || r.Errored() {
			continue
		}
		if q, _ := r.Findings["photo_quality"].(string); q == "poor" {
			return domain.Pattern{
				Type:     domain.PatternLowPhotoQuality,
				Severity: domain.SeverityLow,
				Reason:   "face comparison reported poor photo quality",
			}, true
		}
	}
	return domain.Pattern{}, false
}

func replayedFrames(in Input, _ Thresholds) (domain.Pattern, bool) {
	for _, r := range in.StageResults {
		if r.Stage != domain.StageLiveness || r.Errored() {
			continue
		}
		digests, _ := r.Findings["frame_digests"].([]string)
		seen := make(map[string]struct{}, len(digests))
		for _, d := range digests {
			if d == "" {
				continue
			}
			if _, dup := seen[d]; dup {
				return domain.Pattern{
					Type:     domain.PatternReplayedFrames,
					Severity: domain.SeverityCritical,
					Reason:   "sampled liveness frames are byte-identical",
				}, true
			}
			seen[d] = struct{}{}
		}
	}
	return domain.Pattern{}, false
}
