package pagination

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// Cursor is the opaque payload behind a page token. Document stores resume after the
// ordered field values; the in-memory store resumes at an offset.
type Cursor struct {
	After  []string `json:"after,omitempty"`
	Offset int      `json:"offset,omitempty"`
}

// IsZero reports whether the cursor points at the first page.
func (c Cursor) IsZero() bool {
	return len(c.After) == 0 && c.Offset <= 0
}

// EncodeToken serialises the cursor into a base64 URL-safe page token.
func EncodeToken(cursor Cursor) string {
	if cursor.IsZero() {
		return ""
	}
	data, err := json.Marshal(cursor)
	if err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(data)
}

// DecodeToken parses a token produced by EncodeToken.
func DecodeToken(token string) (Cursor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Cursor{}, nil
	}
	decoded, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, fmt.Errorf("%w: %v", ErrInvalidPageToken, err)
	}
	var cursor Cursor
	if err := json.Unmarshal(decoded, &cursor); err != nil {
		return Cursor{}, fmt.Errorf("%w: %v", ErrInvalidPageToken, err)
	}
	if cursor.Offset < 0 {
		return Cursor{}, fmt.Errorf("%w: negative offset", ErrInvalidPageToken)
	}
	return cursor, nil
}
