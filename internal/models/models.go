package models

import (
	"time"

	"github.com/google/uuid"
)

// Tenant is a building: the isolation boundary for channels, messages and
// notifications. Buildings are managed by another service; this row is a
// read-mostly mirror so tenancy can be checked locally.
type Tenant struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// TenantRole is a user's role inside one building.
type TenantRole string

const (
	TenantRoleResident   TenantRole = "resident"
	TenantRoleAdmin      TenantRole = "admin"
	TenantRoleSuperAdmin TenantRole = "super_admin"
)

func (r TenantRole) rank() int {
	switch r {
	case TenantRoleSuperAdmin:
		return 3
	case TenantRoleAdmin:
		return 2
	case TenantRoleResident:
		return 1
	default:
		return 0
	}
}

// AtLeast reports whether r is the same as or above min.
func (r TenantRole) AtLeast(min TenantRole) bool {
	return r.rank() >= min.rank()
}

// TenantMembership links a user to a building they live in or manage.
// A user may belong to several buildings; the JWT selects one at a time.
type TenantMembership struct {
	TenantID  uuid.UUID  `json:"tenant_id"`
	UserID    uuid.UUID  `json:"user_id"`
	Role      TenantRole `json:"role"`
	IsActive  bool       `json:"is_active"`
	CreatedAt time.Time  `json:"created_at"`
}

// User is a person known to the platform. Users are not owned by a single
// tenant; TenantMembership carries that relationship.
type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"display_name"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// ChannelType drives the creation and access rules of a channel.
type ChannelType string

const (
	ChannelTypeDirect        ChannelType = "direct"
	ChannelTypeGroup         ChannelType = "group"
	ChannelTypeBuilding      ChannelType = "building"
	ChannelTypeBuildingGroup ChannelType = "building_group"
	ChannelTypePublic        ChannelType = "public"
)

func (t ChannelType) Valid() bool {
	switch t {
	case ChannelTypeDirect, ChannelTypeGroup, ChannelTypeBuilding, ChannelTypeBuildingGroup, ChannelTypePublic:
		return true
	}
	return false
}

// Channel is a conversation. TenantID is nil only for public channels.
//
// DirectKey is set for direct channels: the two participant ids sorted and
// joined with ":". (tenant_id, direct_key) is unique, which is what makes
// direct channel creation race-free.
type Channel struct {
	ID             uuid.UUID   `json:"id"`
	TenantID       *uuid.UUID  `json:"tenant_id"`
	Name           string      `json:"name"`
	Description    string      `json:"description"`
	Type           ChannelType `json:"type"`
	CreatorID      uuid.UUID   `json:"creator_id"`
	IsActive       bool        `json:"is_active"`
	IsPrivate      bool        `json:"is_private"`
	IsClosed       bool        `json:"is_closed"`
	DirectKey      *string     `json:"-"`
	LastActivityAt time.Time   `json:"last_activity_at"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// SameTenant reports whether the channel belongs to tenantID.
func (c *Channel) SameTenant(tenantID *uuid.UUID) bool {
	if c.TenantID == nil || tenantID == nil {
		return c.TenantID == nil && tenantID == nil
	}
	return *c.TenantID == *tenantID
}

// MemberRole is a user's role inside one channel.
type MemberRole string

const (
	MemberRoleOwner  MemberRole = "owner"
	MemberRoleAdmin  MemberRole = "admin"
	MemberRoleMember MemberRole = "member"
)

func (r MemberRole) Valid() bool {
	return r == MemberRoleOwner || r == MemberRoleAdmin || r == MemberRoleMember
}

// CanManage reports whether the role may manage other members.
func (r MemberRole) CanManage() bool {
	return r == MemberRoleOwner || r == MemberRoleAdmin
}

// ChannelMember is one row of the membership ledger. Removal flips IsActive
// and stamps LeftAt; the row is reactivated on re-join, never duplicated.
type ChannelMember struct {
	ChannelID uuid.UUID  `json:"channel_id"`
	UserID    uuid.UUID  `json:"user_id"`
	Role      MemberRole `json:"role"`
	CanWrite  bool       `json:"can_write"`
	IsActive  bool       `json:"is_active"`
	JoinedAt  time.Time  `json:"joined_at"`
	LeftAt    *time.Time `json:"left_at,omitempty"`
}

// MessageType tags what a message displays.
type MessageType string

const (
	MessageTypeText   MessageType = "text"
	MessageTypeImage  MessageType = "image"
	MessageTypeVideo  MessageType = "video"
	MessageTypeAudio  MessageType = "audio"
	MessageTypeFile   MessageType = "file"
	MessageTypeCall   MessageType = "call"
	MessageTypeSystem MessageType = "system"
)

func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeText, MessageTypeImage, MessageTypeVideo, MessageTypeAudio,
		MessageTypeFile, MessageTypeCall, MessageTypeSystem:
		return true
	}
	return false
}

// IsMedia reports whether the type is listed as shared media.
func (t MessageType) IsMedia() bool {
	switch t {
	case MessageTypeImage, MessageTypeVideo, MessageTypeAudio, MessageTypeFile:
		return true
	}
	return false
}

// DeletedContent replaces the content of a tombstoned message.
const DeletedContent = "This message was deleted"

// Message is a single chat message in a channel.
//
// ID is a bigserial: the order of ids is the authoritative display order
// within a channel, and the pagination cursor.
type Message struct {
	ID           int64       `json:"id"`
	ChannelID    uuid.UUID   `json:"channel_id"`
	SenderID     uuid.UUID   `json:"sender_id"`
	Content      string      `json:"content"`
	Type         MessageType `json:"type"`
	ReplyToID    *int64      `json:"reply_to_id,omitempty"`
	AttachmentID *uuid.UUID  `json:"attachment_id,omitempty"`
	CallID       *uuid.UUID  `json:"call_id,omitempty"`
	IsEdited     bool        `json:"is_edited"`
	IsDeleted    bool        `json:"is_deleted"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// Attachment is the file-storage service's record of an uploaded file.
type Attachment struct {
	ID        uuid.UUID `json:"id"`
	OwnerID   uuid.UUID `json:"owner_id"`
	FileName  string    `json:"file_name"`
	MimeType  string    `json:"mime_type"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"created_at"`
}

// CallStatus is a state of the call state machine.
type CallStatus string

const (
	CallStatusInitiated CallStatus = "INITIATED"
	CallStatusAnswered  CallStatus = "ANSWERED"
	CallStatusEnded     CallStatus = "ENDED"
	CallStatusMissed    CallStatus = "MISSED"
	CallStatusRejected  CallStatus = "REJECTED"
)

// Terminal reports whether no further transition is allowed.
func (s CallStatus) Terminal() bool {
	return s == CallStatusEnded || s == CallStatusMissed || s == CallStatusRejected
}

// Call is a one-to-one call placed inside a channel. Calls are retained
// as history and never deleted.
type Call struct {
	ID              uuid.UUID  `json:"id"`
	ChannelID       uuid.UUID  `json:"channel_id"`
	CallerID        uuid.UUID  `json:"caller_id"`
	ReceiverID      uuid.UUID  `json:"receiver_id"`
	Status          CallStatus `json:"status"`
	IsVideo         bool       `json:"is_video"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
	DurationSeconds int        `json:"duration_seconds"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// OtherParty returns the participant that is not userID.
func (c *Call) OtherParty(userID uuid.UUID) uuid.UUID {
	if userID == c.CallerID {
		return c.ReceiverID
	}
	return c.CallerID
}

// IsParticipant reports whether userID is the caller or the receiver.
func (c *Call) IsParticipant(userID uuid.UUID) bool {
	return userID == c.CallerID || userID == c.ReceiverID
}

// NotificationType tags what a notification is about.
type NotificationType string

const (
	NotificationTypeMessage       NotificationType = "message"
	NotificationTypeChannelInvite NotificationType = "channel_invite"
	NotificationTypeCall          NotificationType = "call"
	NotificationTypeCallIncoming  NotificationType = "call_incoming"
	NotificationTypeMissedCall    NotificationType = "missed_call"
)

// Notification is one inbox item for one recipient. Only the read flag is
// ever mutated after creation.
type Notification struct {
	ID          uuid.UUID        `json:"id"`
	RecipientID uuid.UUID        `json:"recipient_id"`
	TenantID    *uuid.UUID       `json:"tenant_id"`
	Title       string           `json:"title"`
	Body        string           `json:"body"`
	Type        NotificationType `json:"type"`
	ChannelID   *uuid.UUID       `json:"channel_id,omitempty"`
	VoteID      *uuid.UUID       `json:"vote_id,omitempty"`
	DocumentID  *uuid.UUID       `json:"document_id,omitempty"`
	IsRead      bool             `json:"is_read"`
	ReadAt      *time.Time       `json:"read_at,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}

// Page is an offset window over a listing.
type Page struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

const (
	DefaultPageLimit = 50
	MaxPageLimit     = 100
)

// Normalize clamps the page into the accepted range.
func (p Page) Normalize() Page {
	switch {
	case p.Limit <= 0:
		p.Limit = DefaultPageLimit
	case p.Limit > MaxPageLimit:
		p.Limit = MaxPageLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}
