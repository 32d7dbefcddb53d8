package port

import "context"

// SlotRepository stores one opaque payload per named slot.
type SlotRepository interface {
	// Load returns the slot payload, or nil when the slot has never been written
	Load(ctx context.Context, name string) ([]byte, error)

	// Save overwrites the slot with data in a single write
	Save(ctx context.Context, name string, data []byte) error
}
