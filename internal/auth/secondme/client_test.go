package secondme

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
)

func testConfig(tokenURL, refreshURL, apiURL string) Config {
	return Config{
		AuthorizationURL: "https://provider.example/oauth/",
		TokenEndpoint:    tokenURL,
		RefreshEndpoint:  refreshURL,
		APIBaseURL:       apiURL,
		ClientID:         "client-1",
		ClientSecret:     "secret-1",
		RedirectURI:      "http://localhost:8080/callback",
		Scopes:           []string{"user.info"},
	}
}

func TestAuthorizationURL(t *testing.T) {
	c := NewClient(testConfig("https://provider.example/token", "", ""))

	raw := c.AuthorizationURL("state-123")
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("authorization URL not parsable: %v", err)
	}

	q := u.Query()
	if got := q.Get("client_id"); got != "client-1" {
		t.Errorf("client_id = %q, want client-1", got)
	}
	if got := q.Get("redirect_uri"); got != "http://localhost:8080/callback" {
		t.Errorf("redirect_uri = %q", got)
	}
	if got := q.Get("response_type"); got != "code" {
		t.Errorf("response_type = %q, want code", got)
	}
	if got := q.Get("state"); got != "state-123" {
		t.Errorf("state = %q, want state-123", got)
	}
	if got := q.Get("scope"); got != "user.info" {
		t.Errorf("scope = %q, want user.info", got)
	}
}

func TestExchangeCode(t *testing.T) {
	var gotForm url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/x-www-form-urlencoded" {
			t.Errorf("content type = %q", ct)
		}
		r.ParseForm()
		gotForm = r.PostForm
		w.Write([]byte(`{"code":0,"data":{"accessToken":"A","refreshToken":"B","expiresIn":3600}}`))
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL, "", ""))

	token, err := c.ExchangeCode(context.Background(), "code-xyz")
	if err != nil {
		t.Fatalf("ExchangeCode failed: %v", err)
	}

	if token.AccessToken != "A" || token.RefreshToken != "B" || token.ExpiresIn != 3600 {
		t.Errorf("token = %+v, want {A B 3600}", token)
	}

	if gotForm.Get("grant_type") != "authorization_code" {
		t.Errorf("grant_type = %q", gotForm.Get("grant_type"))
	}
	if gotForm.Get("code") != "code-xyz" {
		t.Errorf("code = %q", gotForm.Get("code"))
	}
	if gotForm.Get("client_secret") != "secret-1" {
		t.Errorf("client_secret = %q", gotForm.Get("client_secret"))
	}
}

func TestExchangeCodeFailures(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus int
	}{
		{
			name:       "http 500 with non-JSON body",
			status:     http.StatusInternalServerError,
			body:       "<html>Internal Server Error</html>",
			wantStatus: http.StatusInternalServerError,
		},
		{
			name:       "http 400 with JSON body",
			status:     http.StatusBadRequest,
			body:       `{"error":"invalid_grant"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "2xx with unparsable body",
			status:     http.StatusOK,
			body:       "not json at all",
			wantStatus: http.StatusOK,
		},
		{
			name:       "2xx missing data envelope",
			status:     http.StatusOK,
			body:       `{"code":0,"message":"ok"}`,
			wantStatus: http.StatusOK,
		},
		{
			name:       "2xx null data",
			status:     http.StatusOK,
			body:       `{"code":0,"data":null}`,
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewClient(testConfig(srv.URL, "", ""))

			_, err := c.ExchangeCode(context.Background(), "code")
			if err == nil {
				t.Fatal("expected error, got nil")
			}

			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("error type = %T, want *APIError", err)
			}
			if apiErr.Status != tt.wantStatus {
				t.Errorf("status = %d, want %d", apiErr.Status, tt.wantStatus)
			}
			if apiErr.Op != "exchange" {
				t.Errorf("op = %q, want exchange", apiErr.Op)
			}
		})
	}
}

func TestExchangeCodeTransportError(t *testing.T) {
	// Point at a closed server so the request itself fails
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := NewClient(testConfig(srv.URL, "", ""))

	_, err := c.ExchangeCode(context.Background(), "code")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error type = %T, want *APIError", err)
	}
	if apiErr.Status != 0 {
		t.Errorf("status = %d, want 0 for transport error", apiErr.Status)
	}
}

func TestRefreshTokenFallback(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		wantRefresh string
	}{
		{
			name:        "provider rotates refresh token",
			body:        `{"code":0,"data":{"accessToken":"A2","refreshToken":"B2","expiresIn":3600}}`,
			wantRefresh: "B2",
		},
		{
			name:        "provider omits refresh token",
			body:        `{"code":0,"data":{"accessToken":"A2","expiresIn":3600}}`,
			wantRefresh: "B1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				r.ParseForm()
				if got := r.PostForm.Get("grant_type"); got != "refresh_token" {
					t.Errorf("grant_type = %q", got)
				}
				if got := r.PostForm.Get("refresh_token"); got != "B1" {
					t.Errorf("refresh_token = %q", got)
				}
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewClient(testConfig("", srv.URL, ""))

			token, err := c.RefreshToken(context.Background(), "B1")
			if err != nil {
				t.Fatalf("RefreshToken failed: %v", err)
			}
			if token.RefreshToken != tt.wantRefresh {
				t.Errorf("refresh token = %q, want %q", token.RefreshToken, tt.wantRefresh)
			}
			if token.AccessToken != "A2" {
				t.Errorf("access token = %q, want A2", token.AccessToken)
			}
		})
	}
}

func TestUserInfo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok-1" {
			t.Errorf("authorization = %q", got)
		}
		if !strings.HasSuffix(r.URL.Path, "/api/secondme/user/info") {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Write([]byte(`{"code":0,"data":{"userId":"u-42","name":"Tester"}}`))
	}))
	defer srv.Close()

	c := NewClient(testConfig("", "", srv.URL))

	profile, err := c.UserInfo(context.Background(), "tok-1")
	if err != nil {
		t.Fatalf("UserInfo failed: %v", err)
	}
	if profile.UserID != "u-42" {
		t.Errorf("user id = %q, want u-42", profile.UserID)
	}
	if !strings.Contains(string(profile.Data), `"name":"Tester"`) {
		t.Errorf("raw data not preserved: %s", profile.Data)
	}
}

func TestUserInfoMissingUserID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":0,"data":{"name":"No ID"}}`))
	}))
	defer srv.Close()

	c := NewClient(testConfig("", "", srv.URL))

	_, err := c.UserInfo(context.Background(), "tok-1")
	if !errors.Is(err, ErrMissingUserID) {
		t.Fatalf("error = %v, want ErrMissingUserID", err)
	}
}

func TestTokenExpiresAt(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	token := Token{ExpiresIn: 3600}

	want := now.Add(time.Hour)
	if got := token.ExpiresAt(now); !got.Equal(want) {
		t.Errorf("ExpiresAt = %v, want %v", got, want)
	}
}
