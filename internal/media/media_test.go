package media

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPStore_GetImage(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantErr    error
		wantAnyErr bool
	}{
		{name: "ok", status: http.StatusOK, body: "jpeg-bytes"},
		{name: "not found", status: http.StatusNotFound, wantErr: ErrMediaNotFound},
		{name: "server error", status: http.StatusBadGateway, wantErr: ErrMediaUnavailable},
		{name: "forbidden", status: http.StatusForbidden, body: "nope", wantAnyErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/objects/doc%2F1.jpg", r.URL.EscapedPath())
				assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			store := NewHTTPStore(HTTPConfig{BaseURL: server.URL + "/", Token: "secret"})
			got, err := store.GetImage(context.Background(), "doc/1.jpg")

			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.wantAnyErr:
				assert.Error(t, err)
			default:
				require.NoError(t, err)
				assert.Equal(t, []byte(tt.body), got)
			}
		})
	}
}

func TestHTTPStore_GetFrameSequence(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sequences/seq-1", r.URL.Path)
		_ = json.NewEncoder(w).Encode(sequenceResponse{Frames: [][]byte{[]byte("a"), []byte("b")}})
	}))
	defer server.Close()

	store := NewHTTPStore(HTTPConfig{BaseURL: server.URL})
	frames, err := store.GetFrameSequence(context.Background(), "seq-1")

	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("a"), []byte("b")}, frames)
}

// countingStore counts GetImage calls.
type countingStore struct {
	*MemoryStore
	calls atomic.Int32
}

func (c *countingStore) GetImage(ctx context.Context, ref string) ([]byte, error) {
	c.calls.Add(1)
	return c.MemoryStore.GetImage(ctx, ref)
}

func TestRefSource_FetchesOnlyRequestedFrames(t *testing.T) {
	mem := NewMemoryStore()
	refs := make([]string, 10)
	for i := range refs {
		refs[i] = string(rune('a' + i))
		mem.PutImage(refs[i], []byte{byte(i)})
	}
	store := &countingStore{MemoryStore: mem}

	src := NewRefSource(store, refs)
	require.Equal(t, 10, src.Len())

	frame, err := src.Frame(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, []byte{7}, frame)
	assert.EqualValues(t, 1, store.calls.Load())

	_, err = src.Frame(context.Background(), 10)
	assert.Error(t, err)
}

func TestLoadSequence(t *testing.T) {
	mem := NewMemoryStore()
	mem.PutSequence("seq", [][]byte{[]byte("0"), []byte("1"), []byte("2")})

	src, err := LoadSequence(context.Background(), mem, "seq")
	require.NoError(t, err)
	assert.Equal(t, 3, src.Len())

	_, err = LoadSequence(context.Background(), mem, "missing")
	assert.ErrorIs(t, err, ErrMediaNotFound)
}
