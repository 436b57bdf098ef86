package mock

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"

	"github.com/saturnino-fabrica-de-software/veritas/internal/inference"
)

// Markers that steer the mock towards a failing verdict. They are matched
// against the raw media bytes so fixtures can opt into each failure.
var (
	MarkerInvalidDocument = []byte("INVALID_DOCUMENT")
	MarkerMismatch        = []byte("FACE_MISMATCH")
	MarkerSpoof           = []byte("SPOOF")
	MarkerUnavailable     = []byte("INFERENCE_DOWN")
)

// ErrUnavailable is returned for media carrying MarkerUnavailable.
var ErrUnavailable = errors.New("mock inference unavailable")

// Client implementa inference.Client para testes e desenvolvimento.
// Os resultados são determinísticos: mesma mídia, mesmo payload.
type Client struct{}

// Ensure Client implements inference.Client at compile time
var _ inference.Client = (*Client)(nil)

// New cria uma nova instância do mock
func New() *Client {
	return &Client{}
}

// RunDocumentAnalysis devolve claims fixos e confiança derivada do hash da imagem
func (c *Client) RunDocumentAnalysis(_ context.Context, image []byte) (json.RawMessage, error) {
	if bytes.Contains(image, MarkerUnavailable) {
		return nil, ErrUnavailable
	}

	isValid := !bytes.Contains(image, MarkerInvalidDocument)
	confidence := scoreFrom(image, 80, 15)
	name := "Maria da Silva"
	dob := "1990-05-17"
	docType := "id_card"
	number := "MOCK" + hexPrefix(image)

	return json.Marshal(inference.DocumentPayload{
		Name:           &name,
		DateOfBirth:    &dob,
		DocumentType:   &docType,
		DocumentNumber: &number,
		ExpiryDate:     nil,
		IsValid:        &isValid,
		Confidence:     &confidence,
	})
}

// RunFaceComparison simula comparação facial
func (c *Client) RunFaceComparison(_ context.Context, documentImage, selfieImage []byte) (json.RawMessage, error) {
	if bytes.Contains(selfieImage, MarkerUnavailable) {
		return nil, ErrUnavailable
	}

	isMatch := !bytes.Contains(selfieImage, MarkerMismatch)
	confidence := scoreFrom(append(append([]byte{}, documentImage...), selfieImage...), 75, 20)
	reasoning := "mock comparison"
	if !isMatch {
		reasoning = "mock mismatch requested"
	}

	return json.Marshal(inference.FacePayload{
		IsMatch:      &isMatch,
		Confidence:   &confidence,
		Reasoning:    reasoning,
		PhotoQuality: "good",
	})
}

// RunLivenessAnalysis simula prova de vida com piscada e movimento
func (c *Client) RunLivenessAnalysis(_ context.Context, frames [][]byte, _ []string) (json.RawMessage, error) {
	spoof := false
	for _, f := range frames {
		if bytes.Contains(f, MarkerUnavailable) {
			return nil, ErrUnavailable
		}
		if bytes.Contains(f, MarkerSpoof) {
			spoof = true
		}
	}

	yes, no := true, false
	confidence := scoreFrom(bytes.Join(frames, nil), 78, 15)
	antiSpoofing := 90.0
	if spoof {
		antiSpoofing = 20
	}

	findings := make([]inference.FrameFinding, len(frames))
	for i := range frames {
		idx := i
		eye := "open"
		if i%2 == 1 {
			eye = "closed"
		}
		findings[i] = inference.FrameFinding{
			Index:       &idx,
			FaceVisible: &yes,
			EyeState:    eye,
			HeadPose:    "frontal",
			Expression:  "neutral",
		}
	}

	return json.Marshal(inference.LivenessPayload{
		FaceDetectedInAllFrames: &yes,
		MovementDetected:        &yes,
		BlinkingObserved:        &yes,
		HeadMovementObserved:    &no,
		ExpressionChanges:       &no,
		AntiSpoofingScore:       &antiSpoofing,
		Confidence:              &confidence,
		Reasoning:               "mock liveness",
		Frames:                  findings,
	})
}

// scoreFrom maps the sha256 of data into [base, base+spread).
func scoreFrom(data []byte, base, spread float64) float64 {
	sum := sha256.Sum256(data)
	return base + float64(sum[0])/256*spread
}

func hexPrefix(data []byte) string {
	sum := sha256.Sum256(data)
	return strings.ToUpper(hex.EncodeToString(sum[:4]))
}
