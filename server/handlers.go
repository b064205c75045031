package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"golang.org/x/oauth2"

	"rentalgw/sheets"
)

// RentalStore is the tabular backing store for units and tenants. The
// spreadsheet is the store of record; nothing is kept in process memory.
type RentalStore interface {
	ListUnits(ctx context.Context) ([]sheets.Unit, error)
	AppendUnit(ctx context.Context, u sheets.Unit) (int, error)
	ListTenants(ctx context.Context) ([]sheets.Tenant, error)
	AppendTenant(ctx context.Context, t sheets.Tenant) (int, error)
	ReadRange(ctx context.Context) (sheets.RangeData, error)
}

// RentalStoreFactory builds a store authenticated with one user's opaque
// provider tokens. A fresh store is built per request; the server holds no
// per-user credentials between requests.
type RentalStoreFactory func(ctx context.Context, providerTokens json.RawMessage) (RentalStore, error)

// App bundles runtime dependencies for the HTTP service.
type App struct {
	Config   Config
	Logger   *slog.Logger
	Codec    *TokenCodec
	Sessions *SessionManager
	Provider IdentityProvider
	Rentals  RentalStoreFactory
}

// NewApp wires together the application state from configuration.
func NewApp(ctx context.Context, cfg Config, logger *slog.Logger) (*App, error) {
	codec, err := NewTokenCodec(cfg.Session.Secret)
	if err != nil {
		return nil, err
	}

	google, err := NewGoogleProvider(ctx, cfg.Google, logger)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config:   cfg,
		Logger:   logger,
		Codec:    codec,
		Sessions: NewSessionManager(cfg, codec, logger),
		Provider: google,
	}
	app.Rentals = func(ctx context.Context, providerTokens json.RawMessage) (RentalStore, error) {
		var tok oauth2.Token
		if err := json.Unmarshal(providerTokens, &tok); err != nil {
			return nil, err
		}
		return sheets.New(ctx, google.TokenSource(ctx, &tok), sheets.Config{
			SpreadsheetID: cfg.Sheets.SpreadsheetID,
			UnitsRange:    cfg.Sheets.UnitsRange,
			TenantsRange:  cfg.Sheets.TenantsRange,
			RentalsRange:  cfg.Sheets.RentalsRange,
		})
	}

	return app, nil
}

// handleLogin starts a login attempt: fresh PKCE material, the verifier
// signed into the state token, and a redirect to the provider's consent
// screen.
func (a *App) handleLogin(w http.ResponseWriter, r *http.Request) {
	// Config is validated at startup; these guards keep the failure mode a
	// named 500 rather than a broken provider redirect.
	if a.Config.Google.ClientID == "" {
		writeError(w, http.StatusInternalServerError, "Missing google.client_id", "")
		return
	}
	if a.Config.Google.RedirectURI == "" {
		writeError(w, http.StatusInternalServerError, "Missing google.redirect_uri", "")
		return
	}

	pkce, err := GeneratePKCE()
	if err != nil {
		a.Logger.Error("pkce generation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Login failed", "")
		return
	}

	state, err := a.Codec.IssueState(pkce.Verifier, a.Config.Session.LoginWindow())
	if err != nil {
		a.Logger.Error("state signing failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Login failed", "")
		return
	}

	http.Redirect(w, r, a.Provider.AuthCodeURL(state, pkce.Challenge), http.StatusFound)
}

// handleCallback completes the login attempt. State verification strictly
// precedes the code exchange: exchanging with unverified state would let a
// forged callback inject an attacker's authorization code.
func (a *App) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	code := q.Get("code")
	state := q.Get("state")

	if code == "" {
		writeError(w, http.StatusBadRequest, "Missing code", "")
		return
	}
	if state == "" {
		writeError(w, http.StatusBadRequest, "Missing state", "")
		return
	}

	verifier, err := a.Codec.VerifyState(state)
	if err != nil {
		// Expired, tampered, and malformed all look alike from outside.
		writeError(w, http.StatusBadRequest, "Invalid state", "")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), DefaultExchangeTimeout)
	defer cancel()

	tok, err := a.Provider.Exchange(ctx, code, verifier)
	if err != nil {
		a.Logger.Error("code exchange failed", "error", err)
		writeError(w, http.StatusInternalServerError, "OAuth callback failed", err.Error())
		return
	}

	user, err := a.Provider.Profile(ctx, tok)
	if err != nil {
		a.Logger.Error("profile fetch failed", "error", err)
		writeError(w, http.StatusInternalServerError, "OAuth callback failed", err.Error())
		return
	}

	raw, err := json.Marshal(tok)
	if err != nil {
		a.Logger.Error("token marshal failed", "error", err)
		writeError(w, http.StatusInternalServerError, "OAuth callback failed", "")
		return
	}

	id := Identity{
		Email:          user.Email,
		Name:           user.Name,
		Picture:        user.Picture,
		ProviderTokens: raw,
	}
	if err := a.Sessions.Create(w, id); err != nil {
		a.Logger.Error("session mint failed", "error", err)
		writeError(w, http.StatusInternalServerError, "OAuth callback failed", "")
		return
	}

	http.Redirect(w, r, a.Config.App.BaseURL, http.StatusFound)
}

type meResponse struct {
	LoggedIn bool   `json:"loggedIn"`
	Email    string `json:"email,omitempty"`
	Name     string `json:"name,omitempty"`
	Picture  string `json:"picture,omitempty"`
}

// handleMe reports the session state. An absent or invalid cookie is normal
// logged-out state, never an error status.
func (a *App) handleMe(w http.ResponseWriter, r *http.Request) {
	id := a.Sessions.Fetch(r)
	if id == nil {
		writeJSON(w, http.StatusOK, meResponse{LoggedIn: false})
		return
	}
	writeJSON(w, http.StatusOK, meResponse{
		LoggedIn: true,
		Email:    id.Email,
		Name:     id.Name,
		Picture:  id.Picture,
	})
}

func (a *App) handleLogout(w http.ResponseWriter, r *http.Request) {
	a.Sessions.Clear(w)
	w.WriteHeader(http.StatusNoContent)
}

type errorBody struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg, detail string) {
	writeJSON(w, status, errorBody{Error: msg, Detail: detail})
}
