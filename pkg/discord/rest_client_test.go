package discord

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRestClient_AssignRole(t *testing.T) {
	t.Run("should put role on guild member", func(t *testing.T) {
		// given
		var method, path, authorization string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			method = r.Method
			path = r.URL.Path
			authorization = r.Header.Get("Authorization")
			w.WriteHeader(http.StatusNoContent)
		}))
		defer server.Close()
		client := NewRestClient(server.Client(), server.URL+"/", "bot-token", "guild-1")

		// when
		err := client.AssignRole(context.Background(), "user-1", "role-1")

		// then
		require.NoError(t, err)
		assert.Equal(t, http.MethodPut, method)
		assert.Equal(t, "/guilds/guild-1/members/user-1/roles/role-1", path)
		assert.Equal(t, "Bot bot-token", authorization)
	})

	t.Run("should return api error with status code", func(t *testing.T) {
		// given
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"message": "Missing Permissions", "code": 50013}`))
		}))
		defer server.Close()
		client := NewRestClient(server.Client(), server.URL, "bot-token", "guild-1")

		// when
		err := client.AssignRole(context.Background(), "user-1", "role-1")

		// then
		require.ErrorIs(t, err, ErrDiscordApi)
		var apiErr *ApiError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
		assert.Contains(t, apiErr.Message, "Missing Permissions")
	})
}
