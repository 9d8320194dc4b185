package announcer

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoPostsAnnouncement(t *testing.T) {
	var (
		gotPath        string
		gotContentType string
		gotBody        string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotContentType = r.Header.Get("Content-Type")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	a := New(WithWebhookURL(server.URL + "/"))
	require.NoError(t, a.Do("purge", "INBOX", 320))

	assert.Equal(t, "/announcements", gotPath, "trailing slash on the base URL must not double up")
	assert.Equal(t, "application/json", gotContentType)
	assert.Contains(t, gotBody, `"message"`)
	assert.Contains(t, gotBody, `purge: mailbox \"INBOX\" affected 320 messages`)
}

func TestDoRejectsNon2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	a := New(WithWebhookURL(server.URL))
	err := a.Do("scan", "INBOX", 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestDoDisabledWithoutURL(t *testing.T) {
	a := New()
	require.NoError(t, a.Do("scan", "INBOX", 10))
}
