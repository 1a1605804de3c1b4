package validator

import (
	"fmt"
	"strings"

	"dmclient/internal/domain"
)

const maxTextRunes = 5000

type Validator struct{}

func New() *Validator {
	return &Validator{}
}

// ValidateMessage checks a message decoded from the server before it is
// allowed into the thread.
func (v *Validator) ValidateMessage(m *domain.Message) error {
	if strings.TrimSpace(m.ID) == "" {
		return fmt.Errorf("message id is required")
	}
	if strings.TrimSpace(m.FromUserID) == "" || strings.TrimSpace(m.ToUserID) == "" {
		return fmt.Errorf("message %s: both participants are required", m.ID)
	}
	return v.validateContent(m)
}

// ValidateLiveMessage checks a message pushed on the live feed. The feed may
// omit the recipient since a thread only has two participants.
func (v *Validator) ValidateLiveMessage(m *domain.Message) error {
	if strings.TrimSpace(m.ID) == "" {
		return fmt.Errorf("message id is required")
	}
	if strings.TrimSpace(m.FromUserID) == "" {
		return fmt.Errorf("message %s: sender is required", m.ID)
	}
	return v.validateContent(m)
}

func (v *Validator) validateContent(m *domain.Message) error {
	for i, item := range m.MediaItems {
		if strings.TrimSpace(item.MediaKey) == "" {
			return fmt.Errorf("message %s: media item %d has no key", m.ID, i)
		}
		if !item.MediaType.Valid() {
			return fmt.Errorf("message %s: media type '%s' is not supported", m.ID, item.MediaType)
		}
	}
	if m.Price != nil && !m.Price.IsPositive() {
		return fmt.Errorf("message %s: price must be positive, got %s", m.ID, m.Price.String())
	}
	return nil
}

func (v *Validator) ValidateText(text string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("text cannot be empty")
	}
	if len([]rune(text)) > maxTextRunes {
		return fmt.Errorf("text exceeds maximum length of %d characters", maxTextRunes)
	}
	return nil
}

func (v *Validator) ValidateSendInput(in domain.SendInput) error {
	if strings.TrimSpace(in.Text) == "" && len(in.Attachments) == 0 {
		return fmt.Errorf("message content cannot be empty")
	}
	if len([]rune(in.Text)) > maxTextRunes {
		return fmt.Errorf("text exceeds maximum length of %d characters", maxTextRunes)
	}
	for i, a := range in.Attachments {
		if a.Body == nil {
			return fmt.Errorf("attachment %d has no content", i)
		}
		if strings.TrimSpace(a.Name) == "" {
			return fmt.Errorf("attachment %d has no file name", i)
		}
	}
	if in.Price != nil {
		if !in.Price.IsPositive() {
			return fmt.Errorf("price must be positive")
		}
		if len(in.Attachments) == 0 {
			return fmt.Errorf("a price requires at least one attachment")
		}
	}
	return nil
}

func (v *Validator) ValidatePaymentMethod(pm domain.PaymentMethod) error {
	stored := strings.TrimSpace(pm.StoredID) != ""
	card := strings.TrimSpace(pm.NewCardToken) != ""
	switch {
	case stored && card:
		return fmt.Errorf("choose either a stored payment method or a new card, not both")
	case !stored && !card:
		return fmt.Errorf("a payment method is required")
	}
	return nil
}
