package thread

import (
	"fmt"

	"github.com/shopspring/decimal"

	"dmclient/internal/domain"
)

// MediaState is the visibility of a message's attachments for one viewer.
type MediaState int

const (
	MediaUnlocked MediaState = iota
	MediaLocked
)

func (s MediaState) String() string {
	if s == MediaLocked {
		return "locked"
	}
	return "unlocked"
}

// MediaStateFor decides whether the viewer sees the media or a purchase
// placeholder. Senders always see their own media.
func MediaStateFor(m domain.Message, viewerID string) MediaState {
	if m.FromUserID == viewerID {
		return MediaUnlocked
	}
	if m.IsMonetized() && !m.IsUnlocked {
		return MediaLocked
	}
	return MediaUnlocked
}

// PurchaseLabel is the call to action shown on locked media.
func PurchaseLabel(price *decimal.Decimal) string {
	if price == nil {
		return ""
	}
	return fmt.Sprintf("Pay $%s to view", price.StringFixed(2))
}
