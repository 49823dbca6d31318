package sink

import (
	"context"
	"log/slog"
)

// Mirror writes every blob to a primary store and then copies it to each
// mirror. Only the primary decides whether a Put succeeded: a mirror that
// fails is logged and skipped, and the next mirror still receives the blob.
// Reads always go to the primary.
type Mirror struct {
	primary Store
	mirrors []Sink
}

// NewMirror creates a Mirror over primary.
func NewMirror(primary Store, mirrors ...Sink) *Mirror {
	return &Mirror{primary: primary, mirrors: mirrors}
}

func (m *Mirror) Put(ctx context.Context, key string, data []byte) error {
	if err := m.primary.Put(ctx, key, data); err != nil {
		return err
	}
	for i, s := range m.mirrors {
		if err := s.Put(ctx, key, data); err != nil {
			slog.Warn("mirror write failed", "mirror", i, "key", key, "error", err)
		}
	}
	return nil
}

func (m *Mirror) List(ctx context.Context, prefix string) ([]string, error) {
	return m.primary.List(ctx, prefix)
}

func (m *Mirror) Get(ctx context.Context, key string) ([]byte, error) {
	return m.primary.Get(ctx, key)
}
