package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/roach88/fleetsync/internal/ir"
)

// marshalPayload converts a row snapshot to canonical JSON TEXT for storage.
// Delete events carry no payload and store SQL NULL.
func marshalPayload(row ir.Row) (any, error) {
	if row == nil {
		return nil, nil
	}
	data, err := ir.MarshalCanonical(row)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return string(data), nil
}

// unmarshalPayload parses payload TEXT back into a Row.
// Uses ir.Row.UnmarshalJSON which keeps integers above 2^53 exact.
func unmarshalPayload(data sql.NullString) (ir.Row, error) {
	if !data.Valid {
		return nil, nil
	}
	var row ir.Row
	if err := json.Unmarshal([]byte(data.String), &row); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	return row, nil
}
