package server

import (
	"encoding/json"
	"net/http"

	"rentalgw/sheets"
)

func decodeBody(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// Resource handlers. Each one re-verifies the session, builds a Sheets store
// from the caller's own provider tokens, and performs a single read or append.

func (a *App) requireSession(w http.ResponseWriter, r *http.Request) *Identity {
	id := a.Sessions.Fetch(r)
	if id == nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized", "")
		return nil
	}
	return id
}

func (a *App) rentalStore(w http.ResponseWriter, r *http.Request, id *Identity) RentalStore {
	if a.Config.Sheets.SpreadsheetID == "" {
		writeError(w, http.StatusInternalServerError, "Missing sheets.spreadsheet_id", "")
		return nil
	}
	store, err := a.Rentals(r.Context(), id.ProviderTokens)
	if err != nil {
		a.Logger.Error("sheets store init failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Sheets access failed", err.Error())
		return nil
	}
	return store
}

func (a *App) handleListUnits(w http.ResponseWriter, r *http.Request) {
	id := a.requireSession(w, r)
	if id == nil {
		return
	}
	store := a.rentalStore(w, r, id)
	if store == nil {
		return
	}

	units, err := store.ListUnits(r.Context())
	if err != nil {
		a.Logger.Error("units read failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch units", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"units": units})
}

func (a *App) handleCreateUnit(w http.ResponseWriter, r *http.Request) {
	id := a.requireSession(w, r)
	if id == nil {
		return
	}

	var unit sheets.Unit
	if err := decodeBody(r, &unit); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid data", "")
		return
	}

	store := a.rentalStore(w, r, id)
	if store == nil {
		return
	}

	rowID, err := store.AppendUnit(r.Context(), unit)
	if err != nil {
		a.Logger.Error("unit append failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to add unit", err.Error())
		return
	}
	unit.ID = rowID
	writeJSON(w, http.StatusCreated, map[string]any{"unit": unit})
}

func (a *App) handleListTenants(w http.ResponseWriter, r *http.Request) {
	id := a.requireSession(w, r)
	if id == nil {
		return
	}
	store := a.rentalStore(w, r, id)
	if store == nil {
		return
	}

	tenants, err := store.ListTenants(r.Context())
	if err != nil {
		a.Logger.Error("tenants read failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch tenants", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tenants": tenants})
}

func (a *App) handleCreateTenant(w http.ResponseWriter, r *http.Request) {
	id := a.requireSession(w, r)
	if id == nil {
		return
	}

	var tenant sheets.Tenant
	if err := decodeBody(r, &tenant); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid data", "")
		return
	}

	store := a.rentalStore(w, r, id)
	if store == nil {
		return
	}

	rowID, err := store.AppendTenant(r.Context(), tenant)
	if err != nil {
		a.Logger.Error("tenant append failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to add tenant", err.Error())
		return
	}
	tenant.ID = rowID
	writeJSON(w, http.StatusCreated, map[string]any{"tenant": tenant})
}

// handleRentals returns the raw configured range, values untouched.
func (a *App) handleRentals(w http.ResponseWriter, r *http.Request) {
	id := a.requireSession(w, r)
	if id == nil {
		return
	}
	store := a.rentalStore(w, r, id)
	if store == nil {
		return
	}

	data, err := store.ReadRange(r.Context())
	if err != nil {
		a.Logger.Error("rentals read failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Sheets read failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, data)
}
