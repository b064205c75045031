// Package sheets treats one Google Sheet as the rental app's tabular data
// store. Each client is authenticated with a single user's OAuth tokens; the
// spreadsheet itself is the store of record.
package sheets

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"
)

// Config locates the spreadsheet and its ranges.
type Config struct {
	SpreadsheetID string
	UnitsRange    string
	TenantsRange  string
	RentalsRange  string
}

// Client reads and appends rows of the rental spreadsheet.
type Client struct {
	svc *gsheets.Service
	cfg Config
}

// New builds a Sheets client authenticated with the caller's token source.
// Extra options are accepted so tests can point the client at a stub server.
func New(ctx context.Context, ts oauth2.TokenSource, cfg Config, opts ...option.ClientOption) (*Client, error) {
	if cfg.SpreadsheetID == "" {
		return nil, fmt.Errorf("spreadsheet id required")
	}
	all := append([]option.ClientOption{option.WithTokenSource(ts)}, opts...)
	svc, err := gsheets.NewService(ctx, all...)
	if err != nil {
		return nil, fmt.Errorf("init sheets service: %w", err)
	}
	return &Client{svc: svc, cfg: cfg}, nil
}

// RangeData is a raw range read, values untouched.
type RangeData struct {
	SpreadsheetID string          `json:"spreadsheetId"`
	Range         string          `json:"range"`
	Values        [][]interface{} `json:"values"`
}

// ListUnits returns all unit rows, skipping the header row.
func (c *Client) ListUnits(ctx context.Context) ([]Unit, error) {
	rows, err := c.getValues(ctx, c.cfg.UnitsRange)
	if err != nil {
		return nil, fmt.Errorf("read units: %w", err)
	}
	if len(rows) <= 1 {
		return []Unit{}, nil
	}
	units := make([]Unit, 0, len(rows)-1)
	for _, row := range rows[1:] {
		units = append(units, unitFromRow(row))
	}
	return units, nil
}

// AppendUnit appends one unit row and returns its row-number id.
func (c *Client) AppendUnit(ctx context.Context, u Unit) (int, error) {
	rows, err := c.getValues(ctx, c.cfg.UnitsRange)
	if err != nil {
		return 0, fmt.Errorf("count units: %w", err)
	}
	id := len(rows)

	vr := &gsheets.ValueRange{Values: [][]interface{}{u.row()}}
	_, err = c.svc.Spreadsheets.Values.
		Append(c.cfg.SpreadsheetID, c.cfg.UnitsRange, vr).
		ValueInputOption("USER_ENTERED").
		Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("append unit: %w", err)
	}
	return id, nil
}

// ListTenants returns all tenant rows, skipping the header row.
func (c *Client) ListTenants(ctx context.Context) ([]Tenant, error) {
	rows, err := c.getValues(ctx, c.cfg.TenantsRange)
	if err != nil {
		return nil, fmt.Errorf("read tenants: %w", err)
	}
	if len(rows) <= 1 {
		return []Tenant{}, nil
	}
	tenants := make([]Tenant, 0, len(rows)-1)
	for i, row := range rows[1:] {
		t := tenantFromRow(row)
		t.ID = i + 1
		tenants = append(tenants, t)
	}
	return tenants, nil
}

// AppendTenant appends one tenant row and returns its row-number id.
func (c *Client) AppendTenant(ctx context.Context, t Tenant) (int, error) {
	rows, err := c.getValues(ctx, c.cfg.TenantsRange)
	if err != nil {
		return 0, fmt.Errorf("count tenants: %w", err)
	}
	id := len(rows)

	vr := &gsheets.ValueRange{Values: [][]interface{}{t.row()}}
	_, err = c.svc.Spreadsheets.Values.
		Append(c.cfg.SpreadsheetID, c.cfg.TenantsRange, vr).
		ValueInputOption("USER_ENTERED").
		Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("append tenant: %w", err)
	}
	return id, nil
}

// ReadRange returns the configured rentals range as-is.
func (c *Client) ReadRange(ctx context.Context) (RangeData, error) {
	rows, err := c.getValues(ctx, c.cfg.RentalsRange)
	if err != nil {
		return RangeData{}, fmt.Errorf("read range: %w", err)
	}
	if rows == nil {
		rows = [][]interface{}{}
	}
	return RangeData{
		SpreadsheetID: c.cfg.SpreadsheetID,
		Range:         c.cfg.RentalsRange,
		Values:        rows,
	}, nil
}

func (c *Client) getValues(ctx context.Context, readRange string) ([][]interface{}, error) {
	resp, err := c.svc.Spreadsheets.Values.
		Get(c.cfg.SpreadsheetID, readRange).
		Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return resp.Values, nil
}
