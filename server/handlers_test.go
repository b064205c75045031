package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"rentalgw/sheets"
)

const (
	testAppOrigin = "https://rental-deal-flow.example.app"
	testAppBase   = testAppOrigin + "/"
)

// fakeProvider stands in for Google in handler tests.
type fakeProvider struct {
	exchangeCode     string
	exchangeVerifier string
	exchangeErr      error
	profile          ProviderUser
	profileErr       error
}

func (f *fakeProvider) AuthCodeURL(state, challenge string) string {
	v := url.Values{}
	v.Set("client_id", "test-client")
	v.Set("redirect_uri", "https://gw.example.com/auth/callback")
	v.Set("response_type", "code")
	v.Set("state", state)
	v.Set("code_challenge", challenge)
	v.Set("code_challenge_method", "S256")
	return "https://provider.example/o/oauth2/v2/auth?" + v.Encode()
}

func (f *fakeProvider) Exchange(ctx context.Context, code, verifier string) (*oauth2.Token, error) {
	f.exchangeCode = code
	f.exchangeVerifier = verifier
	if f.exchangeErr != nil {
		return nil, f.exchangeErr
	}
	return &oauth2.Token{AccessToken: "upstream-access", RefreshToken: "upstream-refresh"}, nil
}

func (f *fakeProvider) Profile(ctx context.Context, tok *oauth2.Token) (ProviderUser, error) {
	if f.profileErr != nil {
		return ProviderUser{}, f.profileErr
	}
	return f.profile, nil
}

// fakeStore is an in-test RentalStore; resource handler tests never reach
// the real Sheets API.
type fakeStore struct {
	units   []sheets.Unit
	tenants []sheets.Tenant
	err     error
}

func (s *fakeStore) ListUnits(ctx context.Context) ([]sheets.Unit, error) {
	return s.units, s.err
}

func (s *fakeStore) AppendUnit(ctx context.Context, u sheets.Unit) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	s.units = append(s.units, u)
	return len(s.units), nil
}

func (s *fakeStore) ListTenants(ctx context.Context) ([]sheets.Tenant, error) {
	return s.tenants, s.err
}

func (s *fakeStore) AppendTenant(ctx context.Context, t sheets.Tenant) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	s.tenants = append(s.tenants, t)
	return len(s.tenants), nil
}

func (s *fakeStore) ReadRange(ctx context.Context) (sheets.RangeData, error) {
	if s.err != nil {
		return sheets.RangeData{}, s.err
	}
	return sheets.RangeData{
		SpreadsheetID: "sheet-1",
		Range:         "Monsey!A:Z",
		Values:        [][]interface{}{{"header"}},
	}, nil
}

func setupTestApp(t *testing.T) (*App, *fakeProvider, *fakeStore) {
	t.Helper()

	cfg := DefaultConfig()
	cfg.Google.ClientID = "test-client"
	cfg.Google.ClientSecret = "test-secret"
	cfg.Google.RedirectURI = "https://gw.example.com/auth/callback"
	cfg.App.BaseURL = testAppBase
	cfg.Session.Secret = testSecret
	cfg.CORS.AllowedOrigins = []string{testAppOrigin, "http://localhost:3000"}
	cfg.Sheets.SpreadsheetID = "sheet-1"

	if err := cfg.Validate(); err != nil {
		t.Fatalf("test config invalid: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	codec, err := NewTokenCodec(cfg.Session.Secret)
	if err != nil {
		t.Fatalf("NewTokenCodec: %v", err)
	}

	provider := &fakeProvider{
		profile: ProviderUser{Email: "user@example.com", Name: "Test User"},
	}
	store := &fakeStore{}

	app := &App{
		Config:   cfg,
		Logger:   logger,
		Codec:    codec,
		Sessions: NewSessionManager(cfg, codec, logger),
		Provider: provider,
	}
	app.Rentals = func(ctx context.Context, tokens json.RawMessage) (RentalStore, error) {
		var tok oauth2.Token
		if err := json.Unmarshal(tokens, &tok); err != nil {
			return nil, err
		}
		return store, nil
	}

	return app, provider, store
}

func doRequest(app *App, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	app.Routes().ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("error body not JSON: %v (%s)", err, w.Body.String())
	}
	return body
}

func TestLoginRedirect(t *testing.T) {
	app, _, _ := setupTestApp(t)

	w := doRequest(app, httptest.NewRequest("GET", "/auth/login", nil))
	if w.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", w.Code)
	}

	loc, err := url.Parse(w.Header().Get("Location"))
	if err != nil {
		t.Fatalf("bad Location: %v", err)
	}
	q := loc.Query()

	state := q.Get("state")
	if state == "" {
		t.Fatal("redirect missing state param")
	}
	challenge := q.Get("code_challenge")
	if challenge == "" {
		t.Fatal("redirect missing code_challenge param")
	}
	if q.Get("code_challenge_method") != "S256" {
		t.Errorf("code_challenge_method = %q, want S256", q.Get("code_challenge_method"))
	}

	// The state must decode to the verifier whose challenge was sent.
	verifier, err := app.Codec.VerifyState(state)
	if err != nil {
		t.Fatalf("state does not verify: %v", err)
	}
	if ChallengeS256(verifier) != challenge {
		t.Error("challenge does not match verifier embedded in state")
	}
}

func TestLoginStatesAreIndependent(t *testing.T) {
	app, _, _ := setupTestApp(t)

	verifiers := make(map[string]struct{})
	for i := 0; i < 5; i++ {
		w := doRequest(app, httptest.NewRequest("GET", "/auth/login", nil))
		loc, _ := url.Parse(w.Header().Get("Location"))
		v, err := app.Codec.VerifyState(loc.Query().Get("state"))
		if err != nil {
			t.Fatalf("state does not verify: %v", err)
		}
		if _, dup := verifiers[v]; dup {
			t.Fatal("verifier reused across login attempts")
		}
		verifiers[v] = struct{}{}
	}
}

func TestHappyPath(t *testing.T) {
	app, provider, _ := setupTestApp(t)

	// Step 1: login redirect.
	w := doRequest(app, httptest.NewRequest("GET", "/auth/login", nil))
	if w.Code != http.StatusFound {
		t.Fatalf("login status = %d, want 302", w.Code)
	}
	loc, _ := url.Parse(w.Header().Get("Location"))
	state := loc.Query().Get("state")
	challenge := loc.Query().Get("code_challenge")

	// Step 2: provider redirects back with the same state.
	cb := httptest.NewRequest("GET", "/auth/callback?code=abc&state="+url.QueryEscape(state), nil)
	w = doRequest(app, cb)
	if w.Code != http.StatusFound {
		t.Fatalf("callback status = %d, want 302 (body %s)", w.Code, w.Body.String())
	}
	if got := w.Header().Get("Location"); got != testAppBase {
		t.Errorf("callback redirect = %q, want %q", got, testAppBase)
	}

	if provider.exchangeCode != "abc" {
		t.Errorf("exchanged code = %q, want abc", provider.exchangeCode)
	}
	if ChallengeS256(provider.exchangeVerifier) != challenge {
		t.Error("exchange used a verifier that does not match the challenge")
	}

	cookies := w.Result().Cookies()
	var session *http.Cookie
	for _, c := range cookies {
		if c.Name == "session" {
			session = c
		}
	}
	if session == nil {
		t.Fatal("callback did not set session cookie")
	}
	if !session.HttpOnly || !session.Secure || session.SameSite != http.SameSiteNoneMode {
		t.Errorf("cookie flags wrong: %+v", session)
	}
	if session.MaxAge != int(DefaultSessionTTL.Seconds()) {
		t.Errorf("cookie MaxAge = %d, want %d", session.MaxAge, int(DefaultSessionTTL.Seconds()))
	}

	// Step 3: /auth/me with the cookie.
	me := httptest.NewRequest("GET", "/auth/me", nil)
	me.AddCookie(&http.Cookie{Name: session.Name, Value: session.Value})
	w = doRequest(app, me)
	if w.Code != http.StatusOK {
		t.Fatalf("me status = %d, want 200", w.Code)
	}
	var resp meResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("me body not JSON: %v", err)
	}
	if !resp.LoggedIn || resp.Email != "user@example.com" || resp.Name != "Test User" {
		t.Errorf("me = %+v", resp)
	}
}

func TestCallbackValidation(t *testing.T) {
	tests := []struct {
		name       string
		target     func(app *App) string
		wantStatus int
		wantError  string
	}{
		{
			name:       "missing_code",
			target:     func(app *App) string { return "/auth/callback?state=" + issueTestState(app, time.Now()) },
			wantStatus: http.StatusBadRequest,
			wantError:  "Missing code",
		},
		{
			name:       "missing_state",
			target:     func(app *App) string { return "/auth/callback?code=abc" },
			wantStatus: http.StatusBadRequest,
			wantError:  "Missing state",
		},
		{
			name:       "forged_state",
			target:     func(app *App) string { return "/auth/callback?code=abc&state=garbage" },
			wantStatus: http.StatusBadRequest,
			wantError:  "Invalid state",
		},
		{
			name: "expired_state",
			target: func(app *App) string {
				return "/auth/callback?code=abc&state=" + issueTestState(app, time.Now().Add(-11*time.Minute))
			},
			wantStatus: http.StatusBadRequest,
			wantError:  "Invalid state",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app, provider, _ := setupTestApp(t)
			w := doRequest(app, httptest.NewRequest("GET", tt.target(app), nil))
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if body := decodeError(t, w); body.Error != tt.wantError {
				t.Errorf("error = %q, want %q", body.Error, tt.wantError)
			}
			if provider.exchangeCode != "" {
				t.Error("code exchange attempted despite failed validation")
			}
		})
	}
}

// issueTestState mints a state token as if issued at the given time.
func issueTestState(app *App, issuedAt time.Time) string {
	saved := app.Codec.now
	app.Codec.now = func() time.Time { return issuedAt }
	defer func() { app.Codec.now = saved }()

	state, err := app.Codec.IssueState("test-verifier", DefaultStateTTL)
	if err != nil {
		panic(err)
	}
	return url.QueryEscape(state)
}

func TestCallbackUpstreamFailure(t *testing.T) {
	app, provider, _ := setupTestApp(t)
	provider.exchangeErr = errors.New("invalid_grant: code expired")

	target := "/auth/callback?code=abc&state=" + issueTestState(app, time.Now())
	w := doRequest(app, httptest.NewRequest("GET", target, nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	body := decodeError(t, w)
	if body.Error != "OAuth callback failed" {
		t.Errorf("error = %q", body.Error)
	}
	if !strings.Contains(body.Detail, "invalid_grant") {
		t.Errorf("detail %q does not carry upstream message", body.Detail)
	}
}

func TestMeWithoutCookie(t *testing.T) {
	app, _, _ := setupTestApp(t)

	w := doRequest(app, httptest.NewRequest("GET", "/auth/me", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (logged-out is not an error)", w.Code)
	}
	var resp meResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("body not JSON: %v", err)
	}
	if resp.LoggedIn {
		t.Error("loggedIn = true without a cookie")
	}
	if resp.Email != "" {
		t.Errorf("email leaked: %q", resp.Email)
	}
}

func TestMeWithBadCookie(t *testing.T) {
	app, _, _ := setupTestApp(t)

	for _, value := range []string{"garbage", "a.b.c", ""} {
		req := httptest.NewRequest("GET", "/auth/me", nil)
		req.AddCookie(&http.Cookie{Name: "session", Value: value})
		w := doRequest(app, req)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", w.Code)
		}
		var resp meResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("body not JSON: %v", err)
		}
		if resp.LoggedIn {
			t.Errorf("cookie %q treated as a session", value)
		}
	}
}

func TestLogoutClearsCookie(t *testing.T) {
	app, _, _ := setupTestApp(t)

	w := doRequest(app, httptest.NewRequest("POST", "/auth/logout", nil))
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}
	cookies := w.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != "session" || cookies[0].MaxAge >= 0 {
		t.Errorf("logout cookies = %+v", cookies)
	}
}

func loginAndGetCookie(t *testing.T, app *App) *http.Cookie {
	t.Helper()
	w := doRequest(app, httptest.NewRequest("GET", "/auth/login", nil))
	loc, _ := url.Parse(w.Header().Get("Location"))
	state := loc.Query().Get("state")
	w = doRequest(app, httptest.NewRequest("GET", "/auth/callback?code=abc&state="+url.QueryEscape(state), nil))
	for _, c := range w.Result().Cookies() {
		if c.Name == "session" {
			return &http.Cookie{Name: c.Name, Value: c.Value}
		}
	}
	t.Fatal("no session cookie after callback")
	return nil
}

func TestResourcesRequireSession(t *testing.T) {
	app, _, _ := setupTestApp(t)

	for _, target := range []string{"/api/units", "/api/tenants", "/api/rentals"} {
		w := doRequest(app, httptest.NewRequest("GET", target, nil))
		if w.Code != http.StatusUnauthorized {
			t.Errorf("GET %s status = %d, want 401", target, w.Code)
		}
		if body := decodeError(t, w); body.Error != "Unauthorized" {
			t.Errorf("GET %s error = %q", target, body.Error)
		}
	}
}

func TestUnitsCRUD(t *testing.T) {
	app, _, store := setupTestApp(t)
	store.units = []sheets.Unit{{Name: "Landlord", Town: "Monsey", Rent: "2100"}}

	cookie := loginAndGetCookie(t, app)

	req := httptest.NewRequest("GET", "/api/units", nil)
	req.AddCookie(cookie)
	w := doRequest(app, req)
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d (body %s)", w.Code, w.Body.String())
	}
	var list struct {
		Units []sheets.Unit `json:"units"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("list body: %v", err)
	}
	if len(list.Units) != 1 || list.Units[0].Town != "Monsey" {
		t.Errorf("units = %+v", list.Units)
	}

	req = httptest.NewRequest("POST", "/api/units", strings.NewReader(`{"name":"New","rent":"1800"}`))
	req.AddCookie(cookie)
	w = doRequest(app, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d (body %s)", w.Code, w.Body.String())
	}
	var created struct {
		Unit sheets.Unit `json:"unit"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("create body: %v", err)
	}
	if created.Unit.ID == 0 || created.Unit.Name != "New" {
		t.Errorf("created unit = %+v", created.Unit)
	}
}

func TestCreateUnitRejectsBadBody(t *testing.T) {
	app, _, _ := setupTestApp(t)
	cookie := loginAndGetCookie(t, app)

	req := httptest.NewRequest("POST", "/api/units", strings.NewReader("{not json"))
	req.AddCookie(cookie)
	w := doRequest(app, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if body := decodeError(t, w); body.Error != "Invalid data" {
		t.Errorf("error = %q", body.Error)
	}
}

func TestRentalsRange(t *testing.T) {
	app, _, _ := setupTestApp(t)
	cookie := loginAndGetCookie(t, app)

	req := httptest.NewRequest("GET", "/api/rentals", nil)
	req.AddCookie(cookie)
	w := doRequest(app, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var data sheets.RangeData
	if err := json.Unmarshal(w.Body.Bytes(), &data); err != nil {
		t.Fatalf("body: %v", err)
	}
	if data.SpreadsheetID != "sheet-1" || len(data.Values) != 1 {
		t.Errorf("data = %+v", data)
	}
}

func TestSheetsMisconfigurationNamesKey(t *testing.T) {
	app, _, _ := setupTestApp(t)
	app.Config.Sheets.SpreadsheetID = ""
	cookie := loginAndGetCookie(t, app)

	req := httptest.NewRequest("GET", "/api/rentals", nil)
	req.AddCookie(cookie)
	w := doRequest(app, req)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	if body := decodeError(t, w); body.Error != "Missing sheets.spreadsheet_id" {
		t.Errorf("error = %q", body.Error)
	}
}
