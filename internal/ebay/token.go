package ebay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrNoCredentials is returned when neither a bearer token nor app
// credentials are configured.
var ErrNoCredentials = errors.New("ebay: no bearer token or app credentials configured")

// Tokens are refreshed this long before eBay says they expire.
const tokenExpiryMargin = time.Minute

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

// accessToken returns a valid bearer token, exchanging app credentials via
// the client credentials grant when needed.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.staticToken {
		return c.token, nil
	}
	if c.token != "" && time.Now().Before(c.tokenExpiry) {
		return c.token, nil
	}
	if c.appID == "" || c.certID == "" {
		return "", ErrNoCredentials
	}

	result := &tokenResponse{}
	_, err := handleError(c.httpClient.
		NewRequest().
		SetContext(ctx).
		SetBasicAuth(c.appID, c.certID).
		SetFormData(map[string]string{
			"grant_type": "client_credentials",
			"scope":      applicationScope,
		}).
		SetResult(result).
		Post("/identity/v1/oauth2/token"))
	if err != nil {
		return "", fmt.Errorf("failed to obtain ebay token: %w", err)
	}
	if result.AccessToken == "" {
		return "", errors.New("ebay token response has no access_token")
	}

	c.token = result.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(result.ExpiresIn)*time.Second - tokenExpiryMargin)
	log.Debug().Int("expiresIn", result.ExpiresIn).Msg("obtained ebay application token")

	return c.token, nil
}
