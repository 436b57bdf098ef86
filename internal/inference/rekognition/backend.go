package rekognition

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"

	"github.com/saturnino-fabrica-de-software/veritas/internal/inference"
)

const (
	// headYawRange and headPitchRange are the pose spreads (degrees) read as head movement.
	headYawRange   = 15.0
	headPitchRange = 10.0
	// centerShift is the bounding-box displacement (fraction of the frame) read as movement.
	centerShift = 0.03
	// eyeStateConfidence is the minimum EyesOpen confidence to trust the eye state.
	eyeStateConfidence = 80.0
	// emotionConfidence is the minimum confidence for an emotion to count as the expression.
	emotionConfidence = 50.0
)

// Backend implements inference.Client on top of AWS Rekognition.
// Document analysis reads the MRZ through DetectText, face comparison uses
// CompareFaces and liveness is derived from per-frame DetectFaces attributes.
type Backend struct {
	api    API
	config Config
	now    func() time.Time
}

// Ensure Backend implements inference.Client at compile time
var _ inference.Client = (*Backend)(nil)

// NewBackend creates a new Rekognition inference backend
func NewBackend(api API, cfg Config) *Backend {
	return &Backend{
		api:    api,
		config: cfg,
		now:    time.Now,
	}
}

// RunDocumentAnalysis reads the document text and portrait.
func (b *Backend) RunDocumentAnalysis(ctx context.Context, image []byte) (json.RawMessage, error) {
	textOut, err := b.api.DetectText(ctx, &rekognition.DetectTextInput{
		Image: &types.Image{Bytes: image},
	})
	if err != nil {
		return nil, mapAPIError("detect text", err)
	}

	faceOut, err := b.api.DetectFaces(ctx, &rekognition.DetectFacesInput{
		Image:      &types.Image{Bytes: image},
		Attributes: []types.Attribute{types.AttributeDefault},
	})
	if err != nil && !isNoFaceError(err) {
		return nil, mapAPIError("detect faces", err)
	}

	var lines []string
	var textConfidence float64
	for _, d := range textOut.TextDetections {
		if d.Type != types.TextTypesLine {
			continue
		}
		lines = append(lines, aws.ToString(d.DetectedText))
		textConfidence += float64(aws.ToFloat32(d.Confidence))
	}
	if len(lines) > 0 {
		textConfidence /= float64(len(lines))
	}

	portraitConfidence := 0.0
	if faceOut != nil {
		for _, f := range faceOut.FaceDetails {
			portraitConfidence = math.Max(portraitConfidence, float64(aws.ToFloat32(f.Confidence)))
		}
	}
	hasPortrait := portraitConfidence >= b.config.MinFaceConfidence

	payload := inference.DocumentPayload{}
	isValid := hasPortrait && len(lines) > 0
	confidence := textConfidence

	now := b.now()
	if m, ok := findMRZ(lines, now); ok {
		name := m.FullName()
		dob := m.DateOfBirth.Format("2006-01-02")
		docType := m.documentTypeName()
		number := m.DocumentNumber
		expiry := m.ExpiryDate.Format("2006-01-02")

		payload.Name = nonEmpty(name)
		payload.DateOfBirth = &dob
		payload.DocumentType = &docType
		payload.DocumentNumber = nonEmpty(number)
		payload.ExpiryDate = &expiry

		if !m.ChecksValid || m.ExpiryDate.Before(now) {
			isValid = false
		}
	} else {
		// without a machine readable zone nothing can be cross-checked
		confidence *= 0.8
	}

	if hasPortrait {
		confidence = math.Min(confidence, portraitConfidence)
	}

	payload.IsValid = &isValid
	confidence = clamp(confidence)
	payload.Confidence = &confidence

	return json.Marshal(payload)
}

// RunFaceComparison compares the selfie (source) against the document (target).
func (b *Backend) RunFaceComparison(ctx context.Context, documentImage, selfieImage []byte) (json.RawMessage, error) {
	out, err := b.api.CompareFaces(ctx, &rekognition.CompareFacesInput{
		SourceImage:         &types.Image{Bytes: selfieImage},
		TargetImage:         &types.Image{Bytes: documentImage},
		SimilarityThreshold: aws.Float32(0),
	})
	if err != nil {
		if isNoFaceError(err) {
			return json.Marshal(facePayload(false, 0, "no face detected in selfie or document", "poor"))
		}
		return nil, mapAPIError("compare faces", err)
	}

	best := 0.0
	var quality *types.ImageQuality
	for _, m := range out.FaceMatches {
		sim := float64(aws.ToFloat32(m.Similarity))
		if sim >= best {
			best = sim
			if m.Face != nil {
				quality = m.Face.Quality
			}
		}
	}
	if quality == nil && len(out.UnmatchedFaces) > 0 {
		quality = out.UnmatchedFaces[0].Quality
	}

	isMatch := best >= b.config.MatchSimilarity
	confidence := best
	if !isMatch {
		confidence = 100 - best
	}

	reasoning := fmt.Sprintf("best similarity %.1f against match threshold %.1f", best, b.config.MatchSimilarity)
	return json.Marshal(facePayload(isMatch, clamp(confidence), reasoning, gradeQuality(quality)))
}

// frameObservation is what one DetectFaces call says about a frame.
type frameObservation struct {
	visible    bool
	confidence float64
	eyeState   string
	yaw        float64
	pitch      float64
	centerX    float64
	centerY    float64
	expression string
}

// RunLivenessAnalysis runs DetectFaces on every frame and derives motion
// signals from how the face changes across them. DetectFaces exposes no
// presentation-attack signal, so the anti-spoofing score is discounted when
// the frames show no natural variation.
func (b *Backend) RunLivenessAnalysis(ctx context.Context, frames [][]byte, _ []string) (json.RawMessage, error) {
	observations := make([]frameObservation, len(frames))
	findings := make([]inference.FrameFinding, len(frames))

	for i, frame := range frames {
		out, err := b.api.DetectFaces(ctx, &rekognition.DetectFacesInput{
			Image:      &types.Image{Bytes: frame},
			Attributes: []types.Attribute{types.AttributeAll},
		})
		if err != nil && !isNoFaceError(err) {
			return nil, mapAPIError(fmt.Sprintf("detect faces frame %d", i), err)
		}

		obs := b.observe(out)
		observations[i] = obs

		idx := i
		visible := obs.visible
		findings[i] = inference.FrameFinding{
			Index:       &idx,
			FaceVisible: &visible,
			EyeState:    obs.eyeState,
			HeadPose:    fmt.Sprintf("yaw=%.1f pitch=%.1f", obs.yaw, obs.pitch),
			Expression:  strings.ToLower(obs.expression),
		}
	}

	faceInAll := len(observations) > 0
	var sumConfidence float64
	eyeStates := map[string]bool{}
	expressions := map[string]bool{}
	minYaw, maxYaw := math.Inf(1), math.Inf(-1)
	minPitch, maxPitch := math.Inf(1), math.Inf(-1)
	minX, maxX := math.Inf(1), math.Inf(-1)
	minY, maxY := math.Inf(1), math.Inf(-1)

	for _, o := range observations {
		if !o.visible {
			faceInAll = false
			continue
		}
		sumConfidence += o.confidence
		eyeStates[o.eyeState] = true
		if o.expression != "" {
			expressions[o.expression] = true
		}
		minYaw, maxYaw = math.Min(minYaw, o.yaw), math.Max(maxYaw, o.yaw)
		minPitch, maxPitch = math.Min(minPitch, o.pitch), math.Max(maxPitch, o.pitch)
		minX, maxX = math.Min(minX, o.centerX), math.Max(maxX, o.centerX)
		minY, maxY = math.Min(minY, o.centerY), math.Max(maxY, o.centerY)
	}

	confidence := 0.0
	if len(observations) > 0 {
		confidence = sumConfidence / float64(len(observations))
	}

	blinking := eyeStates["open"] && eyeStates["closed"]
	headMovement := maxYaw-minYaw > headYawRange || maxPitch-minPitch > headPitchRange
	movement := maxX-minX > centerShift || maxY-minY > centerShift
	expressionChanges := len(expressions) > 1

	antiSpoofing := confidence
	switch {
	case len(observations) < 2:
		antiSpoofing *= 0.6
	case !blinking && !headMovement && !movement && !expressionChanges:
		antiSpoofing *= 0.5
	}
	antiSpoofing = clamp(antiSpoofing)
	confidence = clamp(confidence)

	payload := inference.LivenessPayload{
		FaceDetectedInAllFrames: &faceInAll,
		MovementDetected:        &movement,
		BlinkingObserved:        &blinking,
		HeadMovementObserved:    &headMovement,
		ExpressionChanges:       &expressionChanges,
		AntiSpoofingScore:       &antiSpoofing,
		Confidence:              &confidence,
		Reasoning:               fmt.Sprintf("%d frames analysed by rekognition", len(frames)),
		Frames:                  findings,
	}
	return json.Marshal(payload)
}

func (b *Backend) observe(out *rekognition.DetectFacesOutput) frameObservation {
	obs := frameObservation{eyeState: "unknown"}
	if out == nil || len(out.FaceDetails) == 0 {
		return obs
	}

	face := out.FaceDetails[0]
	for _, f := range out.FaceDetails[1:] {
		if aws.ToFloat32(f.Confidence) > aws.ToFloat32(face.Confidence) {
			face = f
		}
	}

	obs.confidence = float64(aws.ToFloat32(face.Confidence))
	obs.visible = obs.confidence >= b.config.MinFaceConfidence

	if face.EyesOpen != nil && float64(aws.ToFloat32(face.EyesOpen.Confidence)) >= eyeStateConfidence {
		if face.EyesOpen.Value {
			obs.eyeState = "open"
		} else {
			obs.eyeState = "closed"
		}
	}
	if face.Pose != nil {
		obs.yaw = float64(aws.ToFloat32(face.Pose.Yaw))
		obs.pitch = float64(aws.ToFloat32(face.Pose.Pitch))
	}
	if bb := face.BoundingBox; bb != nil {
		obs.centerX = float64(aws.ToFloat32(bb.Left) + aws.ToFloat32(bb.Width)/2)
		obs.centerY = float64(aws.ToFloat32(bb.Top) + aws.ToFloat32(bb.Height)/2)
	}

	topConfidence := emotionConfidence
	for _, e := range face.Emotions {
		if c := float64(aws.ToFloat32(e.Confidence)); c >= topConfidence {
			topConfidence = c
			obs.expression = string(e.Type)
		}
	}
	return obs
}

func facePayload(isMatch bool, confidence float64, reasoning, quality string) inference.FacePayload {
	return inference.FacePayload{
		IsMatch:      &isMatch,
		Confidence:   &confidence,
		Reasoning:    reasoning,
		PhotoQuality: quality,
	}
}

// gradeQuality maps Rekognition brightness/sharpness (0-100) to good/fair/poor.
func gradeQuality(q *types.ImageQuality) string {
	if q == nil {
		return "fair"
	}
	worst := math.Min(float64(aws.ToFloat32(q.Brightness)), float64(aws.ToFloat32(q.Sharpness)))
	switch {
	case worst >= 60:
		return "good"
	case worst >= 30:
		return "fair"
	default:
		return "poor"
	}
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}

func nonEmpty(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}
