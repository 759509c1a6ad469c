package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/courtyard/internal/models"
)

// Every method takes ctx first: each call is a suspension point and must be
// cancellable with the request that issued it.
//
// Lookups by id return nil, nil when the row does not exist. The service
// layer decides whether that is a NotFound error.

// ErrConflict is returned when a write violates a uniqueness constraint
// that the caller is expected to handle (e.g. the one-building-channel rule).
var ErrConflict = errors.New("repository: unique constraint conflict")

// Store groups the repositories and runs multi-step operations atomically.
type Store interface {
	Channels() ChannelRepository
	Memberships() MembershipRepository
	Messages() MessageRepository
	Calls() CallRepository
	Notifications() NotificationRepository
	Users() UserRepository
	Tenants() TenantRepository
	Attachments() AttachmentRepository

	// InTx runs fn against a Store bound to one transaction. If fn returns an
	// error the transaction is rolled back and nothing fn wrote is visible.
	InTx(ctx context.Context, fn func(tx Store) error) error
}

// ChannelRepository defines the contract for channel data operations.
type ChannelRepository interface {
	// Create inserts a channel. Returns ErrConflict if the partial unique
	// index on active building channels rejects it.
	Create(ctx context.Context, ch *models.Channel) (*models.Channel, error)

	// CreateDirectIfAbsent inserts a direct channel unless one already exists
	// for (tenant, direct key). created is false when the existing row is
	// returned instead. Concurrent callers converge on one row.
	CreateDirectIfAbsent(ctx context.Context, ch *models.Channel) (result *models.Channel, created bool, err error)

	// GetByID returns a single channel. Returns nil, nil if not found.
	GetByID(ctx context.Context, channelID uuid.UUID) (*models.Channel, error)

	// GetDirect returns the direct channel for a pair key inside a tenant.
	GetDirect(ctx context.Context, tenantID uuid.UUID, directKey string) (*models.Channel, error)

	// ActiveBuildingChannel returns the tenant's active building-wide channel.
	ActiveBuildingChannel(ctx context.Context, tenantID uuid.UUID) (*models.Channel, error)

	// ListForMember returns the tenant's channels where userID is an active
	// member, most recent activity first.
	ListForMember(ctx context.Context, tenantID uuid.UUID, userID uuid.UUID, page models.Page) ([]models.Channel, error)

	// Update persists name, description, private and closed flags.
	Update(ctx context.Context, ch *models.Channel) (*models.Channel, error)

	// Touch moves last_activity_at forward.
	Touch(ctx context.Context, channelID uuid.UUID, at time.Time) error
}

// MembershipRepository is the membership ledger.
type MembershipRepository interface {
	// Upsert inserts the membership, or reactivates an existing row with the
	// given role and write flag (clearing left_at). Never duplicates.
	Upsert(ctx context.Context, m *models.ChannelMember) (*models.ChannelMember, error)

	// Activate inserts the membership or reactivates an inactive row. An
	// active row is returned untouched. The bool reports whether this call
	// made the row active: of concurrent callers for one user, one sees true.
	Activate(ctx context.Context, m *models.ChannelMember) (*models.ChannelMember, bool, error)

	// Get returns the row regardless of active state. nil, nil if absent.
	Get(ctx context.Context, channelID uuid.UUID, userID uuid.UUID) (*models.ChannelMember, error)

	// Deactivate flips is_active off and stamps left_at.
	Deactivate(ctx context.Context, channelID uuid.UUID, userID uuid.UUID, at time.Time) error

	// UpdatePermissions changes role and write flag of an existing row.
	UpdatePermissions(ctx context.Context, channelID uuid.UUID, userID uuid.UUID, role models.MemberRole, canWrite bool) (*models.ChannelMember, error)

	// ListActive returns the channel's active members.
	ListActive(ctx context.Context, channelID uuid.UUID) ([]models.ChannelMember, error)
}

// MessageRepository handles chat message persistence.
type MessageRepository interface {
	// Create persists a message and returns it with ID and timestamps populated.
	Create(ctx context.Context, msg *models.Message) (*models.Message, error)

	// GetByID returns nil, nil if not found.
	GetByID(ctx context.Context, messageID int64) (*models.Message, error)

	// UpdateContent rewrites content and the edited/deleted flags; deleting
	// also clears the attachment reference. id and created_at never change.
	UpdateContent(ctx context.Context, messageID int64, content string, edited, deleted bool, at time.Time) (*models.Message, error)

	// ListByChannel returns messages newest first. before=0 means latest.
	// When types is non-empty only those types are returned.
	ListByChannel(ctx context.Context, channelID uuid.UUID, before int64, limit int, types []models.MessageType) ([]models.Message, error)
}

// CallRepository persists calls.
type CallRepository interface {
	Create(ctx context.Context, call *models.Call) (*models.Call, error)

	GetByID(ctx context.Context, callID uuid.UUID) (*models.Call, error)

	// GetForUpdate locks the call row for the rest of the transaction.
	// Only meaningful inside Store.InTx.
	GetForUpdate(ctx context.Context, callID uuid.UUID) (*models.Call, error)

	// Update persists status, timestamps and duration.
	Update(ctx context.Context, call *models.Call) (*models.Call, error)

	ListByChannel(ctx context.Context, channelID uuid.UUID, page models.Page) ([]models.Call, error)

	// ListRingingBefore returns INITIATED calls created before cutoff.
	ListRingingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Call, error)
}

// NotificationRepository persists inbox items.
type NotificationRepository interface {
	Create(ctx context.Context, n *models.Notification) (*models.Notification, error)

	// ListByRecipient returns newest first. tenantID filters when non-nil.
	ListByRecipient(ctx context.Context, recipientID uuid.UUID, tenantID *uuid.UUID, unreadOnly bool, page models.Page) ([]models.Notification, error)

	// MarkRead marks one of the recipient's notifications. nil, nil if the
	// notification does not exist or belongs to someone else.
	MarkRead(ctx context.Context, recipientID uuid.UUID, notificationID uuid.UUID, at time.Time) (*models.Notification, error)

	// MarkAllRead returns the number of rows changed.
	MarkAllRead(ctx context.Context, recipientID uuid.UUID, tenantID *uuid.UUID, at time.Time) (int64, error)

	CountUnread(ctx context.Context, recipientID uuid.UUID, tenantID *uuid.UUID) (int64, error)
}

// UserRepository handles user data.
type UserRepository interface {
	Create(ctx context.Context, email, displayName, passwordHash string) (*models.User, error)
	GetByID(ctx context.Context, userID uuid.UUID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

// TenantRepository answers building-membership questions.
type TenantRepository interface {
	// ListMemberships returns the user's building memberships, oldest first.
	ListMemberships(ctx context.Context, userID uuid.UUID) ([]models.TenantMembership, error)

	// GetMembership returns nil, nil when the user is not in the tenant.
	GetMembership(ctx context.Context, tenantID uuid.UUID, userID uuid.UUID) (*models.TenantMembership, error)

	// ListActiveUsers returns ids of every active member of the tenant.
	ListActiveUsers(ctx context.Context, tenantID uuid.UUID) ([]uuid.UUID, error)
}

// AttachmentRepository reads the file-storage service's attachment records.
type AttachmentRepository interface {
	GetByID(ctx context.Context, attachmentID uuid.UUID) (*models.Attachment, error)
}
