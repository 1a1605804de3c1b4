package apiclient_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dmclient/internal/apiclient"
	"dmclient/internal/domain"
)

type staticToken string

func (s staticToken) Token(context.Context) (string, error) { return string(s), nil }

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func newClient(t *testing.T, r chi.Router) *apiclient.Client {
	t.Helper()
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return apiclient.New(apiclient.Options{
		BaseURL: srv.URL + "/",
		Tokens:  staticToken("tok-123"),
		Logger:  zerolog.Nop(),
	})
}

func wireMessage(id, from string) map[string]any {
	return map[string]any{
		"id":         id,
		"fromUserId": from,
		"toUserId":   "viewer",
		"text":       "hello " + id,
		"createdAt":  "2026-10-15T10:00:00Z",
	}
}

func TestFetchPage(t *testing.T) {
	var (
		mu        sync.Mutex
		gotBefore []string
	)
	r := chi.NewRouter()
	r.Get("/messages/{userID}", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "alice", chi.URLParam(r, "userID"))
		assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
		mu.Lock()
		gotBefore = append(gotBefore, r.URL.Query().Get("before"))
		mu.Unlock()

		if r.URL.Query().Has("before") {
			writeJSON(w, http.StatusOK, map[string]any{
				"messages":   []any{wireMessage("m0", "alice")},
				"nextCursor": nil,
			})
			return
		}
		priced := wireMessage("m1", "alice")
		priced["price"] = "3.00"
		priced["mediaItems"] = []any{map[string]any{"mediaKey": "k1", "mediaType": "image"}}
		writeJSON(w, http.StatusOK, map[string]any{
			"messages":   []any{priced, wireMessage("m2", "viewer")},
			"nextCursor": "c1",
		})
	})
	c := newClient(t, r)

	first, err := c.FetchPage(context.Background(), "alice", nil)
	require.NoError(t, err)
	require.Len(t, first.Messages, 2)
	require.NotNil(t, first.NextCursor)
	assert.Equal(t, "c1", *first.NextCursor)
	assert.True(t, first.Messages[0].Price.Equal(decimal.RequireFromString("3")))
	assert.Equal(t, domain.MediaImage, first.Messages[0].MediaItems[0].MediaType)

	older, err := c.FetchPage(context.Background(), "alice", first.NextCursor)
	require.NoError(t, err)
	assert.Len(t, older.Messages, 1)
	assert.Nil(t, older.NextCursor)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"", "c1"}, gotBefore)
}

func TestFetchPageErrors(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/messages/broken", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "history is unavailable"})
	})
	r.Get("/messages/bad", func(w http.ResponseWriter, r *http.Request) {
		bad := wireMessage("m1", "alice")
		bad["mediaItems"] = []any{map[string]any{"mediaKey": "k", "mediaType": "hologram"}}
		writeJSON(w, http.StatusOK, map[string]any{"messages": []any{wireMessage("m0", "alice"), bad}})
	})
	r.Get("/messages/garbled", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("<html>"))
	})
	c := newClient(t, r)
	ctx := context.Background()

	t.Run("server message", func(t *testing.T) {
		_, err := c.FetchPage(ctx, "broken", nil)
		var apiErr *apiclient.APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusInternalServerError, apiErr.Status)
		assert.Equal(t, "history is unavailable", err.Error())
	})

	t.Run("status text fallback", func(t *testing.T) {
		_, err := c.FetchPage(ctx, "nobody", nil)
		assert.ErrorIs(t, err, domain.ErrNotFound)
		assert.Equal(t, "request failed: Not Found (404)", err.Error())
	})

	t.Run("invalid message rejects page", func(t *testing.T) {
		_, err := c.FetchPage(ctx, "bad", nil)
		assert.ErrorIs(t, err, domain.ErrInvalidResponse)
	})

	t.Run("undecodable body", func(t *testing.T) {
		_, err := c.FetchPage(ctx, "garbled", nil)
		assert.ErrorIs(t, err, domain.ErrInvalidResponse)
	})
}

func TestSendMessage(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/messages/{userID}", func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("Idempotency-Key"))
		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		assert.Equal(t, "look", r.FormValue("text"))
		assert.Equal(t, "4.50", r.FormValue("price"))

		file, header, err := r.FormFile("media")
		if !assert.NoError(t, err) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer file.Close()
		body, _ := io.ReadAll(file)
		assert.Equal(t, "photo.jpg", header.Filename)
		assert.Equal(t, "image/jpeg", header.Header.Get("Content-Type"))
		assert.Equal(t, "jpegbytes", string(body))

		m := wireMessage("new-1", "viewer")
		m["toUserId"] = chi.URLParam(r, "userID")
		m["price"] = 4.5
		m["mediaItems"] = []any{map[string]any{"mediaKey": "up/1", "mediaType": "image"}}
		m["isUnlocked"] = true
		writeJSON(w, http.StatusCreated, m)
	})
	c := newClient(t, r)

	price := decimal.RequireFromString("4.5")
	got, err := c.SendMessage(context.Background(), "alice", domain.SendInput{
		Text:  "look",
		Price: &price,
		Attachments: []domain.Attachment{{
			Name:        "/tmp/photo.jpg",
			ContentType: "image/jpeg",
			Size:        9,
			Body:        strings.NewReader("jpegbytes"),
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, "new-1", got.ID)
	assert.Equal(t, "alice", got.ToUserID)

	_, err = c.SendMessage(context.Background(), "alice", domain.SendInput{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestPurchaseDeleteRead(t *testing.T) {
	var (
		mu        sync.Mutex
		purchased map[string]string
		reads     int
	)
	r := chi.NewRouter()
	r.Post("/messages/direct/{messageID}/purchase", func(w http.ResponseWriter, r *http.Request) {
		if chi.URLParam(r, "messageID") == "declined" {
			writeJSON(w, http.StatusPaymentRequired, map[string]string{"message": "card declined"})
			return
		}
		mu.Lock()
		defer mu.Unlock()
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&purchased))
		writeJSON(w, http.StatusOK, map[string]bool{"isUnlocked": true})
	})
	r.Delete("/messages/direct/{messageID}", func(w http.ResponseWriter, r *http.Request) {
		if chi.URLParam(r, "messageID") == "gone" {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "already deleted"})
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	r.Post("/messages/{userID}/read", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		reads++
		mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
	})
	r.Get("/users/{userID}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"id": chi.URLParam(r, "userID"), "username": "alice_a"})
	})
	c := newClient(t, r)
	ctx := context.Background()

	require.NoError(t, c.Purchase(ctx, "m9", domain.PaymentMethod{StoredID: "pm_1"}))
	mu.Lock()
	assert.Equal(t, "pm_1", purchased["paymentMethodId"])
	mu.Unlock()

	err := c.Purchase(ctx, "declined", domain.PaymentMethod{NewCardToken: "tok_visa"})
	assert.EqualError(t, err, "card declined")

	assert.ErrorIs(t, c.Purchase(ctx, "m9", domain.PaymentMethod{}), domain.ErrInvalidInput)

	require.NoError(t, c.DeleteMessage(ctx, "m1"))
	assert.ErrorIs(t, c.DeleteMessage(ctx, "gone"), domain.ErrMessageDeleted)

	require.NoError(t, c.MarkRead(ctx, "alice"))
	mu.Lock()
	assert.Equal(t, 1, reads)
	mu.Unlock()

	u, err := c.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice_a", u.Username)
}
