package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientSendAndParse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/echo":
			var in map[string]string
			_ = json.NewDecoder(r.Body).Decode(&in)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"symbol": r.URL.Query().Get("symbol"),
				"ct":     r.Header.Get("Content-Type"),
				"auth":   r.Header.Get("Authorization"),
				"body":   in["q"],
			})
		case "/limited":
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte("slow down"))
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	defer srv.Close()

	c := NewClient()
	var out map[string]string
	err := c.SendAndParse(context.Background(), &RequestOptions{
		Method:      MethodPost,
		URL:         srv.URL + "/echo",
		Headers:     map[string]string{"Authorization": "Bearer k"},
		QueryParams: url.Values{"symbol": {"ETHUSDT"}},
		Body:        map[string]string{"q": "hi"},
	}, &out)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"symbol": "ETHUSDT", "ct": "application/json", "auth": "Bearer k", "body": "hi"}, out)

	err = c.SendAndParse(context.Background(), &RequestOptions{Method: MethodGet, URL: srv.URL + "/limited"}, nil)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusTooManyRequests, se.Code)
	assert.Equal(t, "slow down", se.Body)
	assert.True(t, se.Retryable())

	err = c.SendAndParse(context.Background(), &RequestOptions{Method: MethodGet, URL: srv.URL + "/bad"}, nil)
	require.True(t, errors.As(err, &se))
	assert.False(t, se.Retryable())
}
