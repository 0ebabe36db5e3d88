// Package identity refreshes linked social identities against an
// X-compatible OAuth2 API and reads back verification status.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tripmesh/trustd/internal/metrics"
)

// Status classifies one refresh attempt.
type Status int

const (
	// StatusSuccess means the grant was exchanged. RefreshToken carries the
	// rotated token and must replace the stored one, or the next pass will
	// present a consumed grant.
	StatusSuccess Status = iota
	// StatusRevoked means the platform rejected the grant itself. The link
	// is dead and its signals no longer hold.
	StatusRevoked
	// StatusTransient covers everything else. Nothing can be concluded
	// about the grant, so stored signals stay as they are.
	StatusTransient
)

// Outcome is the result of one refresh pass. Premium is nil when the
// profile could not be read; a nil Premium on StatusSuccess still means
// the rotation happened.
type Outcome struct {
	Status       Status
	RefreshToken string
	Premium      *bool
}

var errGrantRevoked = errors.New("grant revoked")

// Client exchanges refresh tokens and queries the authenticated profile.
type Client struct {
	apiURL       string
	clientID     string
	clientSecret string
	client       *http.Client
	metrics      *metrics.Metrics
	logger       *slog.Logger
}

func NewClient(apiURL, clientID, clientSecret string, m *metrics.Metrics, logger *slog.Logger) *Client {
	return &Client{
		apiURL:       apiURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		client:       &http.Client{Timeout: 15 * time.Second},
		metrics:      m,
		logger:       logger,
	}
}

// Refresh exchanges refreshToken for a new grant and, when that succeeds,
// reads the profile to learn the premium tier. A profile failure after a
// successful exchange still reports StatusSuccess: the old token is
// already consumed at that point and the rotated one must be kept.
func (c *Client) Refresh(ctx context.Context, refreshToken string) Outcome {
	grant, err := c.exchangeToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, errGrantRevoked) {
			c.logger.Info("identity grant revoked", "error", err)
			c.metrics.IdentityRevocations.Inc()
			return Outcome{Status: StatusRevoked}
		}
		c.logger.Warn("identity token refresh failed", "error", err)
		c.metrics.RecordCollectorFailure("identity_refresh")
		return Outcome{Status: StatusTransient}
	}

	out := Outcome{Status: StatusSuccess, RefreshToken: grant.RefreshToken}

	profile, err := c.fetchProfile(ctx, grant.AccessToken)
	if err != nil {
		c.logger.Warn("identity profile query failed", "error", err)
		c.metrics.RecordCollectorFailure("identity_profile")
		return out
	}

	premium := isPremiumType(profile.VerifiedType)
	out.Premium = &premium
	return out
}

type tokenGrant struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

func (c *Client) exchangeToken(ctx context.Context, refreshToken string) (*tokenGrant, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.apiURL+"/2/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		// Only an explicit invalid_grant on a client-error status proves
		// revocation. Anything else could be an outage or our own bug.
		if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized {
			var oauthErr struct {
				Error       string `json:"error"`
				Description string `json:"error_description"`
			}
			if json.Unmarshal(body, &oauthErr) == nil && oauthErr.Error == "invalid_grant" {
				return nil, fmt.Errorf("%w: %s", errGrantRevoked, oauthErr.Description)
			}
		}
		return nil, fmt.Errorf("token status %d: %s", resp.StatusCode, string(body))
	}

	var grant tokenGrant
	if err := json.Unmarshal(body, &grant); err != nil {
		return nil, fmt.Errorf("parse token response: %w", err)
	}
	if grant.AccessToken == "" {
		return nil, fmt.Errorf("token response missing access token")
	}
	return &grant, nil
}

type profile struct {
	Username     string `json:"username"`
	Verified     bool   `json:"verified"`
	VerifiedType string `json:"verified_type"`
}

func (c *Client) fetchProfile(ctx context.Context, accessToken string) (*profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.apiURL+"/2/users/me?user.fields=verified,verified_type", nil)
	if err != nil {
		return nil, fmt.Errorf("create profile request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("profile request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read profile response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("profile status %d: %s", resp.StatusCode, string(body))
	}

	var envelope struct {
		Data profile `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("parse profile response: %w", err)
	}
	return &envelope.Data, nil
}

func isPremiumType(verifiedType string) bool {
	switch verifiedType {
	case "blue", "business", "government":
		return true
	}
	return false
}
