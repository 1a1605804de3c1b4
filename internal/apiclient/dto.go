package apiclient

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"dmclient/internal/domain"
)

type mediaItemDTO struct {
	MediaKey  string `json:"mediaKey"`
	MediaType string `json:"mediaType"`
}

type messageDTO struct {
	ID         string           `json:"id"`
	FromUserID string           `json:"fromUserId"`
	ToUserID   string           `json:"toUserId"`
	Text       string           `json:"text"`
	MediaItems []mediaItemDTO   `json:"mediaItems"`
	Price      *decimal.Decimal `json:"price"`
	IsUnlocked bool             `json:"isUnlocked"`
	Deleted    bool             `json:"deleted"`
	CreatedAt  time.Time        `json:"createdAt"`
}

type pageDTO struct {
	Messages   []messageDTO `json:"messages"`
	NextCursor *string      `json:"nextCursor"`
}

type userDTO struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl"`
}

func (d messageDTO) toDomain() domain.Message {
	m := domain.Message{
		ID:         d.ID,
		FromUserID: d.FromUserID,
		ToUserID:   d.ToUserID,
		Text:       d.Text,
		Price:      d.Price,
		IsUnlocked: d.IsUnlocked,
		Deleted:    d.Deleted,
		CreatedAt:  d.CreatedAt,
	}
	if len(d.MediaItems) > 0 {
		m.MediaItems = make([]domain.MediaItem, len(d.MediaItems))
		for i, it := range d.MediaItems {
			m.MediaItems[i] = domain.MediaItem{MediaKey: it.MediaKey, MediaType: domain.MediaType(it.MediaType)}
		}
	}
	if m.Deleted {
		m.Tombstone()
	}
	return m
}

// message converts and validates one message from a response.
func (c *Client) message(d messageDTO) (domain.Message, error) {
	m := d.toDomain()
	if err := c.validator.ValidateMessage(&m); err != nil {
		return domain.Message{}, fmt.Errorf("%w: %v", domain.ErrInvalidResponse, err)
	}
	return m, nil
}

// page converts a history page. One bad message rejects the whole page so
// nothing is merged partially.
func (c *Client) page(d pageDTO) (*domain.Page, error) {
	p := &domain.Page{Messages: make([]domain.Message, 0, len(d.Messages))}
	for _, md := range d.Messages {
		m, err := c.message(md)
		if err != nil {
			return nil, err
		}
		p.Messages = append(p.Messages, m)
	}
	if d.NextCursor != nil && strings.TrimSpace(*d.NextCursor) != "" {
		cur := *d.NextCursor
		p.NextCursor = &cur
	}
	return p, nil
}

func (d userDTO) toDomain() (*domain.User, error) {
	if strings.TrimSpace(d.ID) == "" {
		return nil, fmt.Errorf("%w: user id is missing", domain.ErrInvalidResponse)
	}
	return &domain.User{
		ID:          d.ID,
		Username:    d.Username,
		DisplayName: d.DisplayName,
		AvatarURL:   d.AvatarURL,
	}, nil
}
