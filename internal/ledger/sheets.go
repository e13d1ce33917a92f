package ledger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const DefaultRange = "OPTIMA-2!A2:D"

// SheetsConfig configures the Google Sheets recorder.
//
// Credentials come from ServiceAccountFile when set, otherwise from
// CredentialsJSON (for example an authorized-user token taken from the
// environment). Both formats are accepted in either field.
type SheetsConfig struct {
	SpreadsheetID      string
	Range              string
	ServiceAccountFile string
	CredentialsJSON    string
	Location           *time.Location
}

// Sheets appends one row per entry to a spreadsheet range.
type Sheets struct {
	srv *sheets.Service
	id  string
	rng string
	loc *time.Location
}

func NewSheets(ctx context.Context, cfg SheetsConfig) (*Sheets, error) {
	id := strings.TrimSpace(cfg.SpreadsheetID)
	if id == "" {
		return nil, errors.New("ledger: spreadsheet id is required")
	}
	raw, err := credentialsJSON(cfg)
	if err != nil {
		return nil, err
	}
	creds, err := google.CredentialsFromJSON(ctx, raw, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("ledger: parse credentials: %w", err)
	}
	client := oauth2.NewClient(ctx, creds.TokenSource)
	srv, err := sheets.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("ledger: sheets client: %w", err)
	}
	return newSheetsWithService(srv, cfg), nil
}

func newSheetsWithService(srv *sheets.Service, cfg SheetsConfig) *Sheets {
	rng := strings.TrimSpace(cfg.Range)
	if rng == "" {
		rng = DefaultRange
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	return &Sheets{srv: srv, id: strings.TrimSpace(cfg.SpreadsheetID), rng: rng, loc: loc}
}

func credentialsJSON(cfg SheetsConfig) ([]byte, error) {
	if p := strings.TrimSpace(cfg.ServiceAccountFile); p != "" {
		b, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("ledger: read service account file: %w", err)
		}
		return b, nil
	}
	if s := strings.TrimSpace(cfg.CredentialsJSON); s != "" {
		return []byte(s), nil
	}
	return nil, errors.New("ledger: no credentials (service_account_file or GOOGLE_TOKEN)")
}

func (s *Sheets) Record(ctx context.Context, e Entry) error {
	vr := &sheets.ValueRange{Values: [][]any{e.Row(s.loc)}}
	_, err := s.srv.Spreadsheets.Values.Append(s.id, s.rng, vr).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("ledger: append %s: %w", s.rng, err)
	}
	return nil
}
