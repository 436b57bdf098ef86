package inference

import (
	"context"
	"encoding/json"
)

// Client define a interface para o colaborador de inferência (modelos de IA).
// Implementations return the raw JSON payload; parsing and validation are
// owned by the analyzers.
type Client interface {
	// RunDocumentAnalysis extracts claims and a validity verdict from an identity document image
	RunDocumentAnalysis(ctx context.Context, image []byte) (json.RawMessage, error)

	// RunFaceComparison compares the document portrait with a selfie
	RunFaceComparison(ctx context.Context, documentImage, selfieImage []byte) (json.RawMessage, error)

	// RunLivenessAnalysis inspects the sampled frames of a liveness capture.
	// Per-frame findings are indexed by position in frames.
	RunLivenessAnalysis(ctx context.Context, frames [][]byte, expectedSteps []string) (json.RawMessage, error)
}

// DocumentPayload is the wire shape of a document analysis.
type DocumentPayload struct {
	Name           *string  `json:"name"`
	DateOfBirth    *string  `json:"date_of_birth"`
	DocumentType   *string  `json:"document_type"`
	DocumentNumber *string  `json:"document_number"`
	ExpiryDate     *string  `json:"expiry_date"`
	IsValid        *bool    `json:"is_valid" validate:"required"`
	Confidence     *float64 `json:"confidence" validate:"required,min=0,max=100"`
}

// FacePayload is the wire shape of a face comparison.
type FacePayload struct {
	IsMatch      *bool    `json:"is_match" validate:"required"`
	Confidence   *float64 `json:"confidence" validate:"required,min=0,max=100"`
	Reasoning    string   `json:"reasoning"`
	PhotoQuality string   `json:"photo_quality" validate:"required,oneof=good fair poor"`
}

// LivenessPayload is the wire shape of a liveness analysis.
type LivenessPayload struct {
	FaceDetectedInAllFrames *bool          `json:"face_detected_in_all_frames" validate:"required"`
	MovementDetected        *bool          `json:"movement_detected" validate:"required"`
	BlinkingObserved        *bool          `json:"blinking_observed" validate:"required"`
	HeadMovementObserved    *bool          `json:"head_movement_observed" validate:"required"`
	ExpressionChanges       *bool          `json:"expression_changes" validate:"required"`
	AntiSpoofingScore       *float64       `json:"anti_spoofing_score" validate:"required,min=0,max=100"`
	Confidence              *float64       `json:"confidence" validate:"required,min=0,max=100"`
	IsLive                  *bool          `json:"is_live,omitempty"`
	Reasoning               string         `json:"reasoning,omitempty"`
	Frames                  []FrameFinding `json:"frames" validate:"dive"`
}

// FrameFinding describes one analysed frame.
type FrameFinding struct {
	Index       *int   `json:"index" validate:"required,min=0"`
	FaceVisible *bool  `json:"face_visible" validate:"required"`
	EyeState    string `json:"eye_state" validate:"omitempty,oneof=open closed partial unknown"`
	HeadPose    string `json:"head_pose,omitempty"`
	Expression  string `json:"expression,omitempty"`
}
