package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Manz2/chat-e2e/internal/model"
)

// Storage ports for the relay core. Each is implemented against explicit
// statements with explicit transaction boundaries so the atomicity contracts
// (fan-out all-or-nothing, single-statement prekey claim, transactional SPK
// replace) are auditable in one place.

type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByHandle(ctx context.Context, handle string) (*model.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
}

type DeviceRepository interface {
	// CreateScaffold inserts the bare device row enroll.start hangs the
	// challenge off. Key material arrives at enroll.finish.
	CreateScaffold(ctx context.Context, userID uuid.UUID) (*model.Device, error)
	GetByID(ctx context.Context, id uuid.UUID) (*model.Device, error)
	// SaveEnrollment persists the verified key material, platform, name,
	// certificate fields and lastSeenAt in one statement.
	SaveEnrollment(ctx context.Context, device *model.Device) error
	// Revoke sets revokedAt=now iff the device belongs to ownerHandle.
	// Returns model.ErrDeviceNotFound / model.ErrNotDeviceOwner otherwise.
	Revoke(ctx context.Context, ownerHandle string, deviceID uuid.UUID) error
	ListByUserHandle(ctx context.Context, handle string) ([]model.DeviceSummary, error)
}

type PrekeyRepository interface {
	// ReplaceSignedPrekey deletes all prior signed prekeys for the device and
	// inserts the new one in a single transaction, so a concurrent bundle
	// read never observes zero or two current signed prekeys.
	ReplaceSignedPrekey(ctx context.Context, deviceID uuid.UUID, keyID int, publicKey string, signature []byte, validUntil *time.Time) error
	InsertOneTime(ctx context.Context, deviceID uuid.UUID, items []model.OneTimePrekeyUpload) (int, error)
	CountAvailable(ctx context.Context, deviceID uuid.UUID) (int64, error)
	LatestSigned(ctx context.Context, deviceID uuid.UUID) (*model.Prekey, error)
	// ClaimOne marks the oldest unused one-time prekey used and returns it,
	// as one conditional update. Under N concurrent claimers exactly
	// min(N, available) rows are claimed, each by one caller. Returns
	// (nil, nil) when the pool is empty; that is a normal outcome.
	ClaimOne(ctx context.Context, deviceID uuid.UUID) (*model.Prekey, error)
}

type ConversationRepository interface {
	Exists(ctx context.Context, conversationID uuid.UUID) (bool, error)
	IsMember(ctx context.Context, conversationID, userID uuid.UUID) (bool, error)
	IsMemberDevice(ctx context.Context, conversationID, deviceID uuid.UUID) (bool, error)
}

type MessageRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Message, error)
	// CreateWithFanout inserts the message core plus one delivery per
	// eligible recipient device (every unrevoked member device except the
	// sender's own) in one transaction. Recipient selection runs inside
	// that same transaction, so revocation is enforced at fan-out time.
	// Returns the number of deliveries created.
	CreateWithFanout(ctx context.Context, msg *model.Message, senderDeviceID uuid.UUID, deliveryHeader string, ciphertext []byte) (int, error)
	// CreateControl inserts a control message plus one delivery per sealed
	// payload whose target is currently a member device of the conversation;
	// non-member targets are skipped silently. One transaction.
	CreateControl(ctx context.Context, msg *model.Message, sealed map[uuid.UUID][]byte, deliveryHeader string) (int, error)
}

type DeliveryRepository interface {
	// FetchInbox returns deliveries for the device strictly after the cursor
	// in (createdAt, messageId) order, ascending, up to limit. Delivered and
	// read rows are not filtered out; re-fetching with an earlier cursor
	// re-returns them.
	FetchInbox(ctx context.Context, deviceID uuid.UUID, cursor *model.InboxCursor, limit int) ([]model.InboxItem, error)
	// Ack sets deliveredAt=now on the device's rows whose deliveredAt is
	// still null. Re-acking is a no-op.
	Ack(ctx context.Context, deviceID uuid.UUID, deliveryIDs []uuid.UUID) error
	// MarkRead sets readAt=now on the device's delivery of the message.
	// No Delivered-before-Read ordering is enforced.
	MarkRead(ctx context.Context, deviceID, messageID uuid.UUID) error
}
