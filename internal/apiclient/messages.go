package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"path/filepath"

	"github.com/dustin/go-humanize"

	"dmclient/internal/domain"
)

var _ domain.MessageAPI = (*Client)(nil)

// FetchPage loads the page of history older than cursor; a nil cursor loads
// the most recent page.
func (c *Client) FetchPage(ctx context.Context, userID string, cursor *string) (*domain.Page, error) {
	var q url.Values
	if cursor != nil {
		q = url.Values{"before": []string{*cursor}}
	}
	var dto pageDTO
	if err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/messages/" + url.PathEscape(userID),
		query:  q,
	}, &dto); err != nil {
		return nil, err
	}
	return c.page(dto)
}

// SendMessage posts a message with optional media and price as a multipart
// form. The body is streamed, attachments are never buffered whole.
func (c *Client) SendMessage(ctx context.Context, userID string, in domain.SendInput) (*domain.Message, error) {
	if err := c.validator.ValidateSendInput(in); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}

	var total int64
	for _, a := range in.Attachments {
		total += a.Size
	}
	c.log.Debug().
		Str("to", userID).
		Int("attachments", len(in.Attachments)).
		Str("size", humanize.Bytes(uint64(total))).
		Msg("api: sending message")

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeSendForm(mw, in))
	}()

	var dto messageDTO
	err := c.do(ctx, request{
		method:      http.MethodPost,
		path:        "/messages/" + url.PathEscape(userID),
		body:        pr,
		contentType: mw.FormDataContentType(),
		idempotent:  true,
	}, &dto)
	// unblocks the writer if the request ended before the body was drained
	pr.Close()
	if err != nil {
		return nil, err
	}

	m, err := c.message(dto)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func writeSendForm(mw *multipart.Writer, in domain.SendInput) error {
	if in.Text != "" {
		if err := mw.WriteField("text", in.Text); err != nil {
			return err
		}
	}
	if in.Price != nil {
		if err := mw.WriteField("price", in.Price.StringFixed(2)); err != nil {
			return err
		}
	}
	for _, a := range in.Attachments {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", mime.FormatMediaType("form-data", map[string]string{
			"name":     "media",
			"filename": filepath.Base(a.Name),
		}))
		h.Set("Content-Type", attachmentType(a))
		part, err := mw.CreatePart(h)
		if err != nil {
			return err
		}
		if _, err := io.Copy(part, a.Body); err != nil {
			return fmt.Errorf("copy %s: %w", a.Name, err)
		}
	}
	return mw.Close()
}

func attachmentType(a domain.Attachment) string {
	if a.ContentType != "" {
		return a.ContentType
	}
	if t := mime.TypeByExtension(filepath.Ext(a.Name)); t != "" {
		return t
	}
	return "application/octet-stream"
}

// Purchase pays for the media of one message.
func (c *Client) Purchase(ctx context.Context, messageID string, method domain.PaymentMethod) error {
	if err := c.validator.ValidatePaymentMethod(method); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	body, err := json.Marshal(method)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	return c.do(ctx, request{
		method:      http.MethodPost,
		path:        "/messages/direct/" + url.PathEscape(messageID) + "/purchase",
		body:        bytes.NewReader(body),
		contentType: "application/json",
		idempotent:  true,
	}, nil)
}

// DeleteMessage tombstones a message on the server.
func (c *Client) DeleteMessage(ctx context.Context, messageID string) error {
	err := c.do(ctx, request{
		method: http.MethodDelete,
		path:   "/messages/direct/" + url.PathEscape(messageID),
	}, nil)
	var apiErr *APIError
	if errors.As(err, &apiErr) && (apiErr.Status == http.StatusConflict || apiErr.Status == http.StatusGone) {
		apiErr.sentinel = domain.ErrMessageDeleted
	}
	return err
}

// MarkRead sends a read receipt for the thread with userID.
func (c *Client) MarkRead(ctx context.Context, userID string) error {
	return c.do(ctx, request{
		method: http.MethodPost,
		path:   "/messages/" + url.PathEscape(userID) + "/read",
	}, nil)
}
