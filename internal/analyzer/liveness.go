package analyzer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/saturnino-fabrica-de-software/veritas/internal/domain"
	"github.com/saturnino-fabrica-de-software/veritas/internal/inference"
)

// TechnicalErrorReasoning is the reasoning recorded on a failed liveness stage.
const TechnicalErrorReasoning = "technical error"

// FindingFrameDigests holds the sha256 of every sampled frame, in sample order.
const FindingFrameDigests = "frame_digests"

// ErrNoFrames is returned when the capture has no frames at all.
var ErrNoFrames = errors.New("liveness capture has no frames")

// FrameSource gives random access to a liveness capture so that only the
// sampled frames are ever fetched.
type FrameSource interface {
	Len() int
	Frame(ctx context.Context, index int) ([]byte, error)
}

// LivenessEvaluator decides whether a capture comes from a live person.
type LivenessEvaluator struct {
	base
}

// NewLivenessEvaluator creates a new LivenessEvaluator
func NewLivenessEvaluator(client inference.Client, cfg Config, logger *slog.Logger) *LivenessEvaluator {
	return &LivenessEvaluator{base: newBase(client, cfg, logger, "liveness_evaluator")}
}

// EvaluateLiveness samples the capture, runs the analysis and re-derives the
// verdict from the raw signals. An is_live flag in the payload is recorded
// but never used for gating.
func (e *LivenessEvaluator) EvaluateLiveness(ctx context.Context, frames FrameSource, expectedSteps []string) domain.StageResult {
	total := 0
	if frames != nil {
		total = frames.Len()
	}
	if total <= 0 {
		return e.failed(ctx, ErrNoFrames)
	}

	sampled := SampleIndices(total)
	digests := make([]string, len(sampled))

	raw, err := e.call(ctx, func(ctx context.Context) (json.RawMessage, error) {
		batch := make([][]byte, len(sampled))
		for i, idx := range sampled {
			b, err := frames.Frame(ctx, idx)
			if err != nil {
				return nil, fmt.Errorf("fetch frame %d: %w", idx, err)
			}
			sum := sha256.Sum256(b)
			digests[i] = hex.EncodeToString(sum[:])
			batch[i] = b
		}
		return e.client.RunLivenessAnalysis(ctx, batch, expectedSteps)
	})
	if err != nil {
		return e.failed(ctx, err)
	}

	var p inference.LivenessPayload
	if err := decodeStrict(raw, &p); err != nil {
		return e.failed(ctx, err)
	}

	perFrame := make([]map[string]any, 0, len(p.Frames))
	faceInAll := *p.FaceDetectedInAllFrames
	for _, f := range p.Frames {
		pos := *f.Index
		if pos >= len(sampled) {
			return e.failed(ctx, fmt.Errorf("%w: frame index %d outside %d sampled frames", ErrMalformedPayload, pos, len(sampled)))
		}
		if !*f.FaceVisible {
			faceInAll = false
		}
		perFrame = append(perFrame, map[string]any{
			"index":        sampled[pos],
			"face_visible": *f.FaceVisible,
			"eye_state":    f.EyeState,
			"head_pose":    f.HeadPose,
			"expression":   f.Expression,
		})
	}

	confidence := *p.Confidence
	antiSpoofing := *p.AntiSpoofingScore
	movement := *p.MovementDetected
	blinking := *p.BlinkingObserved
	headMovement := *p.HeadMovementObserved

	t := e.config.Thresholds
	var gates []domain.ReasonCode
	if confidence < t.LivenessMinConfidence {
		gates = append(gates, domain.ReasonLivenessLowConfidence)
	}
	if antiSpoofing < t.AntiSpoofingMinScore {
		gates = append(gates, domain.ReasonLivenessSpoofSuspected)
	}
	if !faceInAll {
		gates = append(gates, domain.ReasonLivenessFaceNotDetected)
	}
	if !movement && !blinking && !headMovement {
		gates = append(gates, domain.ReasonLivenessNoMotion)
	}

	findings := map[string]any{
		"face_detected_in_all_sampled_frames": faceInAll,
		"movement_detected":                   movement,
		"blinking_observed":                   blinking,
		"head_movement_observed":              headMovement,
		"expression_changes":                  *p.ExpressionChanges,
		"anti_spoofing_score":                 antiSpoofing,
		"frames":                              perFrame,
		"sampled_indices":                     sampled,
		"total_frames":                        total,
		FindingFrameDigests:                   digests,
		domain.FindingReasoning:               p.Reasoning,
	}
	if p.IsLive != nil {
		findings["reported_is_live"] = *p.IsLive
	}
	if len(expectedSteps) > 0 {
		findings["expected_steps"] = expectedSteps
	}

	return domain.StageResult{
		Stage:       domain.StageLiveness,
		Confidence:  confidence,
		Passed:      len(gates) == 0,
		Findings:    findings,
		FailedGates: gates,
		EvaluatedAt: e.now().UTC(),
	}
}

func (e *LivenessEvaluator) failed(ctx context.Context, err error) domain.StageResult {
	e.logger.WarnContext(ctx, "liveness evaluation failed", "error", err)
	r := domain.FailedResult(domain.StageLiveness, domain.ReasonLivenessAnalysisFailed, err, e.now())
	r.Findings[domain.FindingReasoning] = TechnicalErrorReasoning
	return r
}

// SliceSource is a FrameSource over frames already in memory.
type SliceSource [][]byte

func (s SliceSource) Len() int { return len(s) }

func (s SliceSource) Frame(_ context.Context, index int) ([]byte, error) {
	if index < 0 || index >= len(s) {
		return nil, fmt.Errorf("frame %d out of range", index)
	}
	return s[index], nil
}
