package secondme

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/hzshumeng/skillacademy/internal/pkg/metrics"
)

// requestTimeout bounds every call against the provider. A timeout is
// reported the same way as any other transport failure.
const requestTimeout = 10 * time.Second

// maxLoggedBody limits how much of a provider response body is kept in
// errors and logs.
const maxLoggedBody = 500

// Config holds the SecondMe OAuth application settings
type Config struct {
	AuthorizationURL string
	TokenEndpoint    string
	RefreshEndpoint  string
	APIBaseURL       string
	ClientID         string
	ClientSecret     string
	RedirectURI      string
	Scopes           []string
}

// Client talks to the SecondMe OAuth and resource API. It normalizes the
// provider's {code, data} envelope and classifies failures as *APIError so
// callers can branch on kind rather than message text.
type Client struct {
	cfg   Config
	oauth *oauth2.Config
	http  *http.Client
	log   *slog.Logger
}

// NewClient creates a SecondMe API client
func NewClient(cfg Config) *Client {
	return &Client{
		cfg: cfg,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthorizationURL,
				TokenURL: cfg.TokenEndpoint,
			},
			Scopes: cfg.Scopes,
		},
		http: &http.Client{Timeout: requestTimeout},
		log:  slog.Default().With(slog.String("client", "secondme")),
	}
}

// AuthorizationURL builds the provider authorization redirect for the given
// CSRF state token. Construction is deterministic; a misconfigured client id
// surfaces later as a provider-side error.
func (c *Client) AuthorizationURL(state string) string {
	return c.oauth.AuthCodeURL(state)
}

// ExchangeCode exchanges an authorization code for a token pair
func (c *Client) ExchangeCode(ctx context.Context, code string) (*Token, error) {
	form := url.Values{
		"client_id":     {c.cfg.ClientID},
		"client_secret": {c.cfg.ClientSecret},
		"code":          {code},
		"grant_type":    {"authorization_code"},
		"redirect_uri":  {c.cfg.RedirectURI},
	}

	data, err := c.postForm(ctx, "exchange", c.cfg.TokenEndpoint, form)
	if err != nil {
		return nil, err
	}

	return decodeToken("exchange", data)
}

// RefreshToken obtains a fresh token pair from a refresh token. When the
// provider omits a replacement refresh token (rotation is optional on its
// side) the input token is carried forward unchanged.
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*Token, error) {
	form := url.Values{
		"client_id":     {c.cfg.ClientID},
		"client_secret": {c.cfg.ClientSecret},
		"refresh_token": {refreshToken},
		"grant_type":    {"refresh_token"},
	}

	data, err := c.postForm(ctx, "refresh", c.cfg.RefreshEndpoint, form)
	if err != nil {
		return nil, err
	}

	token, err := decodeToken("refresh", data)
	if err != nil {
		return nil, err
	}

	if token.RefreshToken == "" {
		token.RefreshToken = refreshToken
	}

	return token, nil
}

// Profile is the authenticated user's profile as returned by the provider.
// Data is the raw provider payload, proxied downstream verbatim.
type Profile struct {
	UserID string
	Code   int
	Data   json.RawMessage
}

// UserInfo fetches the authenticated user's profile with a bearer token
func (c *Client) UserInfo(ctx context.Context, accessToken string) (*Profile, error) {
	start := time.Now()
	var err error
	defer func() {
		metrics.RecordProviderRequest("userinfo", time.Since(start), err)
	}()

	endpoint := strings.TrimRight(c.cfg.APIBaseURL, "/") + "/api/secondme/user/info"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	env, err := c.do("userinfo", req)
	if err != nil {
		return nil, err
	}

	var fields struct {
		UserID string `json:"userId"`
	}
	if jsonErr := json.Unmarshal(env.Data, &fields); jsonErr != nil {
		err = &APIError{Op: "userinfo", Status: http.StatusOK, Body: truncate(string(env.Data)), Err: jsonErr}
		return nil, err
	}

	if fields.UserID == "" {
		err = ErrMissingUserID
		return nil, err
	}

	return &Profile{
		UserID: fields.UserID,
		Code:   env.Code,
		Data:   env.Data,
	}, nil
}

// apiEnvelope is the outer {code, data} shape every SecondMe response uses
type apiEnvelope struct {
	Code int             `json:"code"`
	Data json.RawMessage `json:"data"`
}

// postForm performs a form-encoded POST and validates the response envelope
func (c *Client) postForm(ctx context.Context, op, endpoint string, form url.Values) (*apiEnvelope, error) {
	start := time.Now()
	var err error
	defer func() {
		metrics.RecordProviderRequest(op, time.Since(start), err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	env, err := c.do(op, req)
	return env, err
}

// do executes a provider request and applies the shared validation pipeline:
// non-2xx fails with the raw body (never parsed as JSON), a 2xx body must be
// valid JSON, and the {code, data} envelope must carry a data field.
func (c *Client) do(op string, req *http.Request) (*apiEnvelope, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &APIError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &APIError{Op: op, Status: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.log.Warn("provider request failed",
			slog.String("op", op),
			slog.Int("status", resp.StatusCode),
			slog.String("body", truncate(string(body))))
		return nil, &APIError{Op: op, Status: resp.StatusCode, Body: truncate(string(body))}
	}

	var env apiEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		c.log.Warn("provider response not parsable",
			slog.String("op", op),
			slog.Int("status", resp.StatusCode),
			slog.String("body", truncate(string(body))))
		return nil, &APIError{Op: op, Status: resp.StatusCode, Body: truncate(string(body)), Err: err}
	}

	if len(env.Data) == 0 || string(env.Data) == "null" {
		c.log.Warn("provider response missing data envelope",
			slog.String("op", op),
			slog.String("body", truncate(string(body))))
		return nil, &APIError{Op: op, Status: resp.StatusCode, Body: truncate(string(body)), Err: ErrMissingEnvelope}
	}

	return &env, nil
}

// decodeToken extracts the camelCase token fields from an envelope's data
func decodeToken(op string, env *apiEnvelope) (*Token, error) {
	var fields struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
		ExpiresIn    int64  `json:"expiresIn"`
	}
	if err := json.Unmarshal(env.Data, &fields); err != nil {
		return nil, &APIError{Op: op, Status: http.StatusOK, Body: truncate(string(env.Data)), Err: err}
	}

	return &Token{
		AccessToken:  fields.AccessToken,
		RefreshToken: fields.RefreshToken,
		ExpiresIn:    fields.ExpiresIn,
	}, nil
}

func truncate(s string) string {
	if len(s) > maxLoggedBody {
		return s[:maxLoggedBody]
	}
	return s
}
