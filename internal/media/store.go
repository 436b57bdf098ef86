package media

import (
	"context"
	"errors"
	"fmt"

	"github.com/saturnino-fabrica-de-software/veritas/internal/analyzer"
)

// ErrMediaNotFound is returned when a ref does not resolve to any object.
var ErrMediaNotFound = errors.New("media not found")

// Store resolves media refs to bytes. The pipeline never persists raw media.
type Store interface {
	GetImage(ctx context.Context, ref string) ([]byte, error)
	GetFrameSequence(ctx context.Context, ref string) ([][]byte, error)
}

// RefSource is a FrameSource over a list of per-frame refs. Frames are
// fetched one at a time, so only the sampled ones hit the store.
type RefSource struct {
	store Store
	refs  []string
}

// NewRefSource creates a new RefSource
func NewRefSource(store Store, refs []string) *RefSource {
	return &RefSource{store: store, refs: refs}
}

func (s *RefSource) Len() int { return len(s.refs) }

func (s *RefSource) Frame(ctx context.Context, index int) ([]byte, error) {
	if index < 0 || index >= len(s.refs) {
		return nil, fmt.Errorf("frame %d out of range", index)
	}
	return s.store.GetImage(ctx, s.refs[index])
}

// LoadSequence resolves a whole-sequence ref into an in-memory FrameSource.
func LoadSequence(ctx context.Context, store Store, ref string) (analyzer.FrameSource, error) {
	frames, err := store.GetFrameSequence(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("get frame sequence %s: %w", ref, err)
	}
	return analyzer.SliceSource(frames), nil
}

var _ analyzer.FrameSource = (*RefSource)(nil)
