package clipcache

import (
	"context"
	"errors"
	"log/slog"
)

var _ Store = (*Layered)(nil)

// Layered chains stores from fastest to slowest. Get returns the first hit
// and copies it into every faster layer that missed. Put writes to all
// layers.
type Layered struct {
	layers []Store
}

// NewLayered returns a Layered store over layers, fastest first.
func NewLayered(layers ...Store) *Layered {
	return &Layered{layers: layers}
}

// Get implements [Store]. A failing layer is logged and skipped so that a
// broken disk does not hide a memory hit, or the other way round.
func (l *Layered) Get(ctx context.Context, key Key) ([]byte, bool, error) {
	var errs []error
	for i, s := range l.layers {
		payload, ok, err := s.Get(ctx, key)
		if err != nil {
			slog.Warn("clipcache: layer get failed", "layer", i, "err", err)
			errs = append(errs, err)
			continue
		}
		if !ok {
			continue
		}
		for _, upper := range l.layers[:i] {
			if err := upper.Put(ctx, key, payload); err != nil {
				slog.Debug("clipcache: promote failed", "err", err)
			}
		}
		return payload, true, nil
	}
	if len(errs) == len(l.layers) && len(errs) > 0 {
		return nil, false, errors.Join(errs...)
	}
	return nil, false, nil
}

// Put implements [Store]. It writes to every layer and joins the errors.
func (l *Layered) Put(ctx context.Context, key Key, payload []byte) error {
	var errs []error
	for _, s := range l.layers {
		if err := s.Put(ctx, key, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
