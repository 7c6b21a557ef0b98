package db

import (
	"encoding/base64"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	apiError "github.com/techagentng/citizenchat/errors"
	"github.com/techagentng/citizenchat/models"
)

// Cursor marks the last row of a page by both sort keys, so rows sharing
// a timestamp are neither skipped nor repeated.
type Cursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

func CursorFor(m *models.Message) Cursor {
	return Cursor{CreatedAt: m.CreatedAt, ID: m.ID}
}

func (c Cursor) Encode() string {
	raw := strconv.FormatInt(c.CreatedAt.UnixMicro(), 10) + ":" + c.ID.String()
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

var errBadCursor = apiError.Validation("invalid cursor")

func DecodeCursor(s string) (*Cursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, errBadCursor
	}
	micros, id, ok := strings.Cut(string(raw), ":")
	if !ok {
		return nil, errBadCursor
	}
	ts, err := strconv.ParseInt(micros, 10, 64)
	if err != nil {
		return nil, errBadCursor
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, errBadCursor
	}
	return &Cursor{CreatedAt: time.UnixMicro(ts).UTC(), ID: parsed}, nil
}
