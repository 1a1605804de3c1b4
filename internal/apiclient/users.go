package apiclient

import (
	"context"
	"net/http"
	"net/url"

	"dmclient/internal/domain"
)

// GetUser looks up the profile shown at the top of a thread.
func (c *Client) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	var dto userDTO
	if err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/users/" + url.PathEscape(userID),
	}, &dto); err != nil {
		return nil, err
	}
	return dto.toDomain()
}
