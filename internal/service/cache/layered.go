package cache

import (
	"context"
	"io"
	"time"
)

// Layered reads the local cache first and falls back to the shared one, back-filling local on
// a hit. Writes go to the shared cache first.
type Layered struct {
	local  BytesCache
	shared BytesCache
	// localTTL bounds how long a back-filled entry lives locally.
	localTTL time.Duration
}

var _ BytesCache = (*Layered)(nil)

func NewLayered(local, shared BytesCache, localTTL time.Duration) *Layered {
	return &Layered{local: local, shared: shared, localTTL: localTTL}
}

func (l *Layered) GetBytes(ctx context.Context, key string) ([]byte, bool, error) {
	if b, ok, err := l.local.GetBytes(ctx, key); err == nil && ok {
		return b, true, nil
	}
	b, ok, err := l.shared.GetBytes(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}
	_ = l.local.SetBytes(ctx, key, b, l.localTTL)
	return b, true, nil
}

func (l *Layered) SetBytes(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := l.shared.SetBytes(ctx, key, value, ttl); err != nil {
		return err
	}
	localTTL := l.localTTL
	if ttl > 0 && (localTTL <= 0 || ttl < localTTL) {
		localTTL = ttl
	}
	return l.local.SetBytes(ctx, key, value, localTTL)
}

// Close closes whichever layer holds a connection.
func (l *Layered) Close() error {
	for _, c := range []BytesCache{l.local, l.shared} {
		if cl, ok := c.(io.Closer); ok {
			if err := cl.Close(); err != nil {
				return err
			}
		}
	}
	return nil
}
