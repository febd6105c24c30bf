package meetup

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dthul/swissrpg-discord-bot-sub001/internal/store"
	"github.com/dthul/swissrpg-discord-bot-sub001/internal/test_utils"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type linkHandlerTestEnv struct {
	redis   *miniredis.Miniredis
	linker  *Linker
	handler *LinkHandler
}

// setupLinkHandlerTest serves both the OAuth token endpoint and the Meetup API.
func setupLinkHandlerTest(t *testing.T) linkHandlerTestEnv {
	meetupServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/oauth2/access":
			require.NoError(t, r.ParseForm())
			if r.PostForm.Get("code") != "good-code" {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
				return
			}
			_, _ = w.Write([]byte(`{"access_token":"user-access","refresh_token":"user-refresh","token_type":"bearer","expires_in":3600}`))
		case "/members/self":
			assert.Equal(t, "Bearer user-access", r.Header.Get("Authorization"))
			_, _ = w.Write([]byte(`{"id":1001}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(meetupServer.Close)

	server, client := test_utils.TestWithRedis(t)
	linker := NewLinker(client, "https://bot.example.com", 10*time.Minute)
	auth := newTestAuth(meetupServer.URL + "/oauth2/access")
	return linkHandlerTestEnv{
		redis:   server,
		linker:  linker,
		handler: NewLinkHandler(linker, auth, meetupServer.URL),
	}
}

func (env linkHandlerTestEnv) newLinkingId(t *testing.T, discordUserId string) string {
	t.Helper()
	linkingUrl, err := env.linker.GenerateLinkingURL(t.Context(), discordUserId)
	require.NoError(t, err)
	return linkingUrl[strings.LastIndex(linkingUrl, "/")+1:]
}

func TestLinkHandler_CreateLink(t *testing.T) {
	t.Run("should return linking url", func(t *testing.T) {
		// given
		env := setupLinkHandlerTest(t)
		body, err := json.Marshal(LinkRequestDTO{DiscordUserId: "discord-42"})
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodPost, "/api/link", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		// when
		env.handler.CreateLink(w, req)

		// then
		assert.Equal(t, http.StatusCreated, w.Code)
		var response LinkUrlDTO
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		assert.True(t, strings.HasPrefix(response.Url, "https://bot.example.com/link/"))
	})

	t.Run("should reject missing discord user", func(t *testing.T) {
		// given
		env := setupLinkHandlerTest(t)
		req := httptest.NewRequest(http.MethodPost, "/api/link", bytes.NewBufferString(`{}`))
		w := httptest.NewRecorder()

		// when
		env.handler.CreateLink(w, req)

		// then
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestLinkHandler_StartLink(t *testing.T) {
	t.Run("should redirect to meetup with linking id as state", func(t *testing.T) {
		// given
		env := setupLinkHandlerTest(t)
		linkingId := env.newLinkingId(t, "discord-42")
		req := mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/link/"+linkingId, nil),
			map[string]string{"linkingId": linkingId})
		w := httptest.NewRecorder()

		// when
		env.handler.StartLink(w, req)

		// then
		assert.Equal(t, http.StatusFound, w.Code)
		location, err := url.Parse(w.Header().Get("Location"))
		require.NoError(t, err)
		assert.Equal(t, "secure.meetup.com", location.Host)
		assert.Equal(t, linkingId, location.Query().Get("state"))
		assert.Equal(t, "client-id", location.Query().Get("client_id"))
	})

	t.Run("should report unknown linking id as gone", func(t *testing.T) {
		// given
		env := setupLinkHandlerTest(t)
		req := mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/link/unknown", nil),
			map[string]string{"linkingId": "unknown"})
		w := httptest.NewRecorder()

		// when
		env.handler.StartLink(w, req)

		// then
		assert.Equal(t, http.StatusGone, w.Code)
	})
}

func TestLinkHandler_CompleteLink(t *testing.T) {
	t.Run("should store link and user tokens", func(t *testing.T) {
		// given
		env := setupLinkHandlerTest(t)
		linkingId := env.newLinkingId(t, "discord-42")
		req := httptest.NewRequest(http.MethodGet, "/link/redirect?code=good-code&state="+linkingId, nil)
		w := httptest.NewRecorder()

		// when
		env.handler.CompleteLink(w, req)

		// then
		require.Equal(t, http.StatusOK, w.Code)
		var response LinkedDTO
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		assert.Equal(t, LinkedDTO{DiscordUserId: "discord-42", MeetupUserId: 1001}, response)
		discordUserId, err := env.redis.Get(store.UserDiscordKey(1001))
		require.NoError(t, err)
		assert.Equal(t, "discord-42", discordUserId)
		assert.Equal(t, "user-refresh", env.redis.HGet(store.UserTokensKey(1001), store.UserTokensRefreshTokenField))
		assert.False(t, env.redis.Exists(store.LinkingKey(linkingId)))
	})

	t.Run("should refuse meetup account linked with another discord user", func(t *testing.T) {
		// given
		env := setupLinkHandlerTest(t)
		require.NoError(t, env.redis.Set(store.UserDiscordKey(1001), "discord-7"))
		linkingId := env.newLinkingId(t, "discord-42")
		req := httptest.NewRequest(http.MethodGet, "/link/redirect?code=good-code&state="+linkingId, nil)
		w := httptest.NewRecorder()

		// when
		env.handler.CompleteLink(w, req)

		// then
		assert.Equal(t, http.StatusConflict, w.Code)
		discordUserId, err := env.redis.Get(store.UserDiscordKey(1001))
		require.NoError(t, err)
		assert.Equal(t, "discord-7", discordUserId)
	})

	t.Run("should report used linking id as gone", func(t *testing.T) {
		// given
		env := setupLinkHandlerTest(t)
		req := httptest.NewRequest(http.MethodGet, "/link/redirect?code=good-code&state=unknown", nil)
		w := httptest.NewRecorder()

		// when
		env.handler.CompleteLink(w, req)

		// then
		assert.Equal(t, http.StatusGone, w.Code)
	})

	t.Run("should report rejected authorization code", func(t *testing.T) {
		// given
		env := setupLinkHandlerTest(t)
		linkingId := env.newLinkingId(t, "discord-42")
		req := httptest.NewRequest(http.MethodGet, "/link/redirect?code=bad-code&state="+linkingId, nil)
		w := httptest.NewRecorder()

		// when
		env.handler.CompleteLink(w, req)

		// then
		assert.Equal(t, http.StatusBadGateway, w.Code)
		assert.True(t, env.redis.Exists(store.LinkingKey(linkingId)))
	})

	t.Run("should require code and state", func(t *testing.T) {
		// given
		env := setupLinkHandlerTest(t)
		req := httptest.NewRequest(http.MethodGet, "/link/redirect", nil)
		w := httptest.NewRecorder()

		// when
		env.handler.CompleteLink(w, req)

		// then
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
