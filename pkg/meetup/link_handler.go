package meetup

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dthul/swissrpg-discord-bot-sub001/internal/rest"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

type CodeExchanger interface {
	AuthCodeURL(state string) string
	ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error)
}

type LinkRequestDTO struct {
	DiscordUserId string `json:"discordUserId"`
}

type LinkUrlDTO struct {
	Url string `json:"url"`
}

type LinkedDTO struct {
	DiscordUserId string `json:"discordUserId"`
	MeetupUserId  int64  `json:"meetupUserId"`
}

// LinkHandler connects a Discord user with their Meetup account through the Meetup OAuth flow.
type LinkHandler struct {
	linker *Linker
	auth   CodeExchanger
	apiUrl string
}

func NewLinkHandler(linker *Linker, auth CodeExchanger, apiUrl string) *LinkHandler {
	return &LinkHandler{linker: linker, auth: auth, apiUrl: apiUrl}
}

// CreateLink godoc
// @Summary Create a linking URL for a Discord user
// @Tags Linking
// @Accept json
// @Produce json
// @Param request body LinkRequestDTO true "Discord user"
// @Success 201 {object} LinkUrlDTO
// @Failure 400 {object} rest.ErrorResponse "Invalid request"
// @Router /api/link [post]
func (h *LinkHandler) CreateLink(w http.ResponseWriter, r *http.Request) {
	var request LinkRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid request body format")
		return
	}
	if request.DiscordUserId == "" {
		rest.WriteError(w, http.StatusBadRequest, "Discord user id is required")
		return
	}

	url, err := h.linker.GenerateLinkingURL(r.Context(), request.DiscordUserId)
	if err != nil {
		log.Errorf("failed to create linking url: %v", err)
		rest.WriteError(w, http.StatusServiceUnavailable, "Could not create linking url")
		return
	}
	log.Debugf("Created linking url for discord user %s", request.DiscordUserId)
	rest.WriteJSON(w, http.StatusCreated, LinkUrlDTO{Url: url})
}

// StartLink godoc
// @Summary Redirect to the Meetup authorization page
// @Tags Linking
// @Success 302
// @Failure 410 {object} rest.ErrorResponse "Link expired or already used"
// @Router /link/{linkingId} [get]
func (h *LinkHandler) StartLink(w http.ResponseWriter, r *http.Request) {
	linkingId := mux.Vars(r)["linkingId"]
	pending, err := h.linker.Pending(r.Context(), linkingId)
	if err != nil {
		log.Errorf("failed to check linking id: %v", err)
		rest.WriteError(w, http.StatusServiceUnavailable, "Could not check link")
		return
	}
	if !pending {
		rest.WriteError(w, http.StatusGone, ErrLinkingTokenNotFound.Error())
		return
	}
	http.Redirect(w, r, h.auth.AuthCodeURL(linkingId), http.StatusFound)
}

// CompleteLink godoc
// @Summary OAuth redirect target, stores the account link
// @Tags Linking
// @Produce json
// @Param code query string true "Authorization code"
// @Param state query string true "Linking id"
// @Success 200 {object} LinkedDTO
// @Failure 400 {object} rest.ErrorResponse "Missing code or state"
// @Failure 410 {object} rest.ErrorResponse "Link expired or already used"
// @Failure 502 {object} rest.ErrorResponse "Meetup rejected the authorization"
// @Router /link/redirect [get]
func (h *LinkHandler) CompleteLink(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	linkingId := r.URL.Query().Get("state")
	if code == "" || linkingId == "" {
		rest.WriteError(w, http.StatusBadRequest, "code and state are required")
		return
	}

	token, err := h.auth.ExchangeCode(r.Context(), code)
	if err != nil {
		log.Errorf("Linking: %v", err)
		rest.WriteError(w, http.StatusBadGateway, "Meetup rejected the authorization")
		return
	}
	meetupUserId, err := NewClientWithToken(token.AccessToken, h.apiUrl, nil).GetSelf(r.Context())
	if err != nil {
		log.Errorf("Linking: %v", err)
		rest.WriteError(w, http.StatusBadGateway, "Could not read Meetup profile")
		return
	}

	discordUserId, err := h.linker.LinkUser(r.Context(), linkingId, meetupUserId, token)
	if err != nil {
		if errors.Is(err, ErrLinkingTokenNotFound) {
			rest.WriteError(w, http.StatusGone, err.Error())
			return
		}
		if errors.Is(err, ErrAlreadyLinked) {
			log.Warnf("Linking: %v", err)
			rest.WriteError(w, http.StatusConflict, ErrAlreadyLinked.Error())
			return
		}
		log.Errorf("Linking: %v", err)
		rest.WriteError(w, http.StatusServiceUnavailable, "Could not store link")
		return
	}
	log.Infof("Linked meetup user %d with discord user %s", meetupUserId, discordUserId)
	rest.WriteJSON(w, http.StatusOK, LinkedDTO{DiscordUserId: discordUserId, MeetupUserId: meetupUserId})
}
