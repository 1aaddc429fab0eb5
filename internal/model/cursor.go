package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// InboxCursor is the pagination token for inbox.fetch: the (createdAt,
// messageId) pair of the last item of the previous page. Pages advance in
// lexicographic (createdAt, messageId) order, so the pair totally orders the
// inbox even when several messages share a timestamp.
type InboxCursor struct {
	CreatedAt time.Time
	MessageID uuid.UUID
}

// DecodeInboxCursor parses the "<epochSeconds>:<uuid>" wire form. A blank or
// malformed cursor yields nil, meaning "from the beginning"; that is how a
// client that lost its cursor recovers.
func DecodeInboxCursor(s string) *InboxCursor {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return nil
	}
	secs, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return nil
	}
	id, err := uuid.Parse(parts[1])
	if err != nil {
		return nil
	}
	return &InboxCursor{CreatedAt: time.Unix(secs, 0).UTC(), MessageID: id}
}

// Encode renders the cursor in its wire form.
func (c *InboxCursor) Encode() string {
	return fmt.Sprintf("%d:%s", c.CreatedAt.Unix(), c.MessageID)
}
