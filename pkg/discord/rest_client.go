package discord

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

type RestClient struct {
	httpClient *http.Client
	apiUrl     string
	token      string
	guildId    string
}

func NewRestClient(httpClient *http.Client, apiUrl string, token string, guildId string) *RestClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &RestClient{
		httpClient: httpClient,
		apiUrl:     strings.TrimSuffix(apiUrl, "/"),
		token:      token,
		guildId:    guildId,
	}
}

// AssignRole adds the role to the guild member. Assigning a role the member already has is a no-op.
func (c *RestClient) AssignRole(ctx context.Context, userId string, roleId string) error {
	endpoint := fmt.Sprintf("%s/guilds/%s/members/%s/roles/%s", c.apiUrl,
		url.PathEscape(c.guildId), url.PathEscape(userId), url.PathEscape(roleId))
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create role request: %w", err)
	}
	req.Header.Set("Authorization", "Bot "+c.token)
	req.Header.Set("X-Audit-Log-Reason", "Meetup RSVP sync")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to assign role %s to %s: %w", roleId, userId, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusOK {
		log.Debugf("Assigned role %s to discord user %s", roleId, userId)
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return &ApiError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
}
