package model

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestInboxCursor_RoundTrip(t *testing.T) {
	orig := &InboxCursor{
		CreatedAt: time.Now().Truncate(time.Second).UTC(),
		MessageID: uuid.New(),
	}

	decoded := DecodeInboxCursor(orig.Encode())
	if decoded == nil {
		t.Fatal("round trip decoded to nil")
	}
	if !decoded.CreatedAt.Equal(orig.CreatedAt) {
		t.Errorf("createdAt = %v, want %v", decoded.CreatedAt, orig.CreatedAt)
	}
	if decoded.MessageID != orig.MessageID {
		t.Errorf("messageID = %s, want %s", decoded.MessageID, orig.MessageID)
	}
}

func TestDecodeInboxCursor_MalformedIsNil(t *testing.T) {
	cases := []string{
		"",
		"   ",
		"no-colon",
		"notanumber:" + uuid.NewString(),
		"1700000000:not-a-uuid",
		":",
	}
	for _, s := range cases {
		if c := DecodeInboxCursor(s); c != nil {
			t.Errorf("DecodeInboxCursor(%q) = %+v, want nil", s, c)
		}
	}
}
