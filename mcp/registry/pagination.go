package registry

import (
	"encoding/base64"
	"encoding/json"
)

// cursorState is the tiny structure wrapped, base64-encoded, into an opaque
// cursor string.
type cursorState struct {
	Offset int `json:"o"`
}

// EncodeCursor wraps offset into an opaque, base64-encoded cursor token.
func EncodeCursor(offset int) string {
	data, _ := json.Marshal(cursorState{Offset: offset})
	return base64.RawURLEncoding.EncodeToString(data)
}

// DecodeCursor unwraps a cursor token produced by EncodeCursor. Any decoding
// failure (bad base64, bad JSON) yields offset 0 rather than an error — an
// invalid cursor is treated as "start from the beginning".
func DecodeCursor(cursor string) int {
	if cursor == "" {
		return 0
	}
	data, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return 0
	}
	var state cursorState
	if err := json.Unmarshal(data, &state); err != nil || state.Offset < 0 {
		return 0
	}
	return state.Offset
}

// Paginate slices items starting at the offset encoded in cursor, returning
// at most pageSize items and the cursor for the next page (empty if this is
// the last page). pageSize <= 0 disables pagination: the whole slice (from
// the decoded offset) is returned with no next cursor.
func Paginate[T any](items []T, cursor string, pageSize int) (page []T, nextCursor string) {
	offset := DecodeCursor(cursor)
	if offset > len(items) {
		offset = len(items)
	}
	rest := items[offset:]

	if pageSize <= 0 {
		return rest, ""
	}
	if len(rest) <= pageSize {
		return rest, ""
	}
	return rest[:pageSize], EncodeCursor(offset + pageSize)
}
