package content

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/google/uuid"
	"github.com/mmcdole/catalog/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_InjectsCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "my-app", r.Header.Get("app_id"))
		assert.Equal(t, "secret", r.Header.Get("app_key"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		_, err := uuid.Parse(r.Header.Get("X-Request-ID"))
		assert.NoError(t, err)
		assert.Equal(t, "/shows", r.URL.Path)
		assert.Equal(t, "people", r.URL.Query().Get("embed"))
		_, _ = w.Write([]byte(`{"shows":[]}`))
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL + "/", AppID: "my-app", AppKey: "secret"}, nil)
	body, err := c.Get(context.Background(), "/shows", url.Values{"embed": []string{"people"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"shows":[]}`, string(body))
}

func TestClient_ErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		usage  bool
		msg    string
	}{
		{"usage limits", 500, `{"_errors":[{"message":"usage limits are exceeded"}]}`, true, "usage limits are exceeded"},
		{"other 500", 500, `{"_errors":[{"message":"database down"}]}`, false, "database down"},
		{"not found without body", 404, ``, false, ""},
		{"non json error", 502, `<html>bad gateway</html>`, false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewClient(ClientConfig{BaseURL: srv.URL}, nil)
			_, err := c.Get(context.Background(), "/shows", nil)

			var upstream *domain.UpstreamError
			require.ErrorAs(t, err, &upstream)
			assert.Equal(t, tt.status, upstream.StatusCode)
			assert.Equal(t, tt.usage, upstream.UsageLimitExceeded)
			assert.Equal(t, tt.msg, upstream.Message)
			assert.Equal(t, tt.usage, errors.Is(err, domain.ErrUsageLimitExceeded))
		})
	}
}

func TestClient_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	base := srv.URL
	srv.Close()

	c := NewClient(ClientConfig{BaseURL: base}, nil)
	_, err := c.Get(context.Background(), "/shows", nil)

	var upstream *domain.UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Zero(t, upstream.StatusCode)
	assert.Error(t, upstream.Err)
}
