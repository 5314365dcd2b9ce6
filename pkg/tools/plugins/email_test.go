package plugins

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEmailPlugin(baseURL string) *EmailPlugin {
	return &EmailPlugin{
		client:      newHTTPClient(),
		baseURL:     baseURL,
		accessToken: "test-token",
	}
}

func TestEmailPlugin_SearchAddsUnreadFilter(t *testing.T) {
	var gotQuery, gotMax, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		gotMax = r.URL.Query().Get("maxResults")
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{"threads": []}`))
	}))
	defer srv.Close()

	p := newEmailPlugin(srv.URL)
	result, err := p.Call(context.Background(), "search_email_threads", map[string]interface{}{
		"query":       "from:alice",
		"unread_only": true,
	})
	require.NoError(t, err)
	require.False(t, result.IsError)

	assert.Equal(t, "from:alice is:unread", gotQuery)
	assert.Equal(t, "10", gotMax)
	assert.Equal(t, "Bearer test-token", gotAuth)
}

func TestEmailPlugin_GetEmailContentDecodesBody(t *testing.T) {
	encoded := base64.URLEncoding.EncodeToString([]byte("Your invoice is attached."))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"threadId": "thread_1",
			"labelIds": []string{"INBOX"},
			"payload": map[string]interface{}{
				"mimeType": "multipart/alternative",
				"headers": []map[string]string{
					{"name": "From", "value": "alice@example.com"},
					{"name": "To", "value": "bob@example.com, carol@example.com"},
					{"name": "Subject", "value": "Invoice"},
				},
				"parts": []map[string]interface{}{
					{"mimeType": "text/html", "body": map[string]string{"data": "aWdub3JlZA"}},
					{"mimeType": "text/plain", "body": map[string]string{"data": encoded}},
				},
			},
		})
	}))
	defer srv.Close()

	p := newEmailPlugin(srv.URL)
	result, err := p.Call(context.Background(), "get_email_content", map[string]interface{}{
		"email_id": "msg_1",
	})
	require.NoError(t, err)
	require.Len(t, result.Content, 1)

	var parsed map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(result.Content[0].Text), &parsed))
	assert.Equal(t, "Your invoice is attached.", parsed["body"])
	assert.Equal(t, "Invoice", parsed["subject"])
	assert.Equal(t, []interface{}{"bob@example.com", "carol@example.com"}, parsed["to"])
	assert.Equal(t, "thread_1", parsed["threadId"])
}

func TestEmailPlugin_SendBuildsRawMessage(t *testing.T) {
	var payload struct {
		Raw string `json:"raw"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		w.Write([]byte(`{"id": "sent_1"}`))
	}))
	defer srv.Close()

	p := newEmailPlugin(srv.URL)
	result, err := p.Call(context.Background(), "send_email", map[string]interface{}{
		"to":      "bob@example.com",
		"subject": "Hello",
		"body":    "Hi Bob",
	})
	require.NoError(t, err)
	require.False(t, result.IsError)

	raw, err := base64.URLEncoding.DecodeString(payload.Raw)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "To: bob@example.com")
	assert.Contains(t, string(raw), "Subject: Hello")
	assert.Contains(t, string(raw), "Hi Bob")
}

func TestEmailPlugin_UpstreamFailureFlagsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusForbidden)
	}))
	defer srv.Close()

	p := newEmailPlugin(srv.URL)
	result, err := p.Call(context.Background(), "search_email_threads", map[string]interface{}{
		"query": "in:inbox",
	})

	// soft failure: the model sees the error text instead of the turn dying
	require.NoError(t, err)
	require.True(t, result.IsError)
	assert.Contains(t, result.Content[0].Text, "search_email_threads failed")
}

func TestEmailPlugin_UnknownTool(t *testing.T) {
	p := newEmailPlugin("http://unused")
	_, err := p.Call(context.Background(), "forward_email", nil)
	require.Error(t, err)
}
