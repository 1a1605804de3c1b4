package ws

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"dmclient/internal/domain"
	"dmclient/internal/validator"
)

const (
	EventDM        = "dm"
	EventDMDeleted = "dmDeleted"
)

var ErrUnknownEvent = errors.New("unknown event type")

// frame is the union of every field the server pushes.
type frame struct {
	Type       string             `json:"type"`
	ID         string             `json:"id"`
	FromUserID string             `json:"fromUserId"`
	ToUserID   string             `json:"toUserId"`
	Text       string             `json:"text"`
	MediaItems []domain.MediaItem `json:"mediaItems"`
	Price      *decimal.Decimal   `json:"price"`
	Timestamp  json.RawMessage    `json:"timestamp"`
}

var check = validator.New()

// DecodeEvent turns one text frame into a domain event. Anything that is not
// a well formed dm or dmDeleted frame is an error. A dm frame may leave out
// toUserId and timestamp.
func DecodeEvent(raw []byte) (domain.Event, error) {
	var f frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}

	switch f.Type {
	case EventDM:
		ts, err := parseTimestamp(f.Timestamp, time.Now().UTC())
		if err != nil {
			return nil, err
		}
		m := domain.Message{
			ID:         f.ID,
			FromUserID: f.FromUserID,
			ToUserID:   f.ToUserID,
			Text:       f.Text,
			MediaItems: f.MediaItems,
			Price:      f.Price,
			CreatedAt:  ts,
		}
		if err := check.ValidateLiveMessage(&m); err != nil {
			return nil, err
		}
		return domain.DMEvent{Message: m}, nil

	case EventDMDeleted:
		if f.ID == "" {
			return nil, fmt.Errorf("dmDeleted frame has no id")
		}
		return domain.DMDeletedEvent{ID: f.ID}, nil
	}
	return nil, fmt.Errorf("%w %q", ErrUnknownEvent, f.Type)
}

// parseTimestamp accepts an RFC3339 string or epoch milliseconds. A frame
// without one is stamped with the receive time.
func parseTimestamp(raw json.RawMessage, received time.Time) (time.Time, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return received, nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return time.Time{}, fmt.Errorf("timestamp: %w", err)
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return time.Time{}, fmt.Errorf("timestamp: %w", err)
		}
		return t, nil
	}
	ms, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("timestamp: %w", err)
	}
	return time.UnixMilli(ms).UTC(), nil
}
