// Package snapshot persists every user's cart as one serialized map under a
// single fixed key. Writes replace the whole map; concurrent writers from
// different processes are last-writer-wins.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fjod/go_cart/cartsync/internal/domain"
)

const DefaultKey = "cart:snapshot"

var ErrCorruptSnapshot = errors.New("stored cart snapshot is corrupt")

type Store interface {
	// ReadAll returns nil and no error when nothing was ever written.
	ReadAll(ctx context.Context) (domain.Snapshot, error)
	WriteAll(ctx context.Context, s domain.Snapshot) error
}

func Encode(s domain.Snapshot) ([]byte, error) {
	if s == nil {
		s = domain.Snapshot{}
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot failed: %w", err)
	}
	return data, nil
}

func Decode(data []byte) (domain.Snapshot, error) {
	var s domain.Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	if s == nil {
		s = domain.Snapshot{}
	}
	return s, nil
}
