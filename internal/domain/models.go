package domain

import (
	"io"
	"time"

	"github.com/shopspring/decimal"
)

// MediaType is the kind of an attachment.
type MediaType string

const (
	MediaImage MediaType = "image"
	MediaVideo MediaType = "video"
	MediaAudio MediaType = "audio"
)

// Valid reports whether t is one of the known media types.
func (t MediaType) Valid() bool {
	switch t {
	case MediaImage, MediaVideo, MediaAudio:
		return true
	}
	return false
}

// MediaItem is a single attachment of a message.
type MediaItem struct {
	MediaKey  string    `json:"mediaKey"`
	MediaType MediaType `json:"mediaType"`
}

// User is the other participant of a thread.
type User struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName,omitempty"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
}

// Message represents a single direct message. ID is the only key used to
// merge REST history with live events.
type Message struct {
	ID         string           `json:"id"`
	FromUserID string           `json:"fromUserId"`
	ToUserID   string           `json:"toUserId"`
	Text       string           `json:"text"`
	MediaItems []MediaItem      `json:"mediaItems,omitempty"`
	Price      *decimal.Decimal `json:"price,omitempty"`
	IsUnlocked bool             `json:"isUnlocked"`
	Deleted    bool             `json:"deleted"`
	CreatedAt  time.Time        `json:"createdAt"`
}

// IsMonetized reports whether the message carries priced media.
func (m *Message) IsMonetized() bool {
	return m.Price != nil && m.Price.IsPositive() && len(m.MediaItems) > 0
}

// Tombstone clears the content of a deleted message. The ID and timestamps
// are kept so the message holds its place in the thread.
func (m *Message) Tombstone() {
	m.Text = ""
	m.MediaItems = nil
	m.Price = nil
	m.Deleted = true
}

// Page is one page of thread history. A nil NextCursor means there are no
// older messages.
type Page struct {
	Messages   []Message
	NextCursor *string
}

// Event is a push event received over the live feed.
type Event interface {
	eventType() string
}

// DMEvent announces a newly created message.
type DMEvent struct {
	Message Message
}

func (DMEvent) eventType() string { return "dm" }

// DMDeletedEvent turns an existing message into a tombstone.
type DMDeletedEvent struct {
	ID string
}

func (DMDeletedEvent) eventType() string { return "dmDeleted" }

// EventType returns the wire name of the event.
func EventType(e Event) string {
	if e == nil {
		return ""
	}
	return e.eventType()
}

// OutgoingDM is a plaintext message posted over the live feed.
type OutgoingDM struct {
	Type     string `json:"type"`
	ToUserID string `json:"toUserId"`
	Text     string `json:"text"`
}

// PaymentMethod selects what pays for a purchase: either a stored method or
// a freshly tokenized card. Exactly one field is set.
type PaymentMethod struct {
	StoredID     string `json:"paymentMethodId,omitempty"`
	NewCardToken string `json:"cardToken,omitempty"`
}

// Attachment is a media file to upload with a message.
type Attachment struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

// SendInput is a message posted through the REST endpoint.
type SendInput struct {
	Text        string
	Attachments []Attachment
	Price       *decimal.Decimal
}
