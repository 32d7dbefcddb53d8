package cart

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/rl1809/pharmacy-cart/internal/core/domain"
)

// Encode serializes line items into the slot format: a JSON array of line-item objects.
func Encode(items []domain.LineItem) ([]byte, error) {
	if items == nil {
		items = []domain.LineItem{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("encode cart slot: %w", err)
	}
	return data, nil
}

// Decode parses a slot payload. An empty payload is an empty cart.
func Decode(data []byte) ([]domain.LineItem, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	var items []domain.LineItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("decode cart slot: %w", err)
	}
	return items, nil
}
