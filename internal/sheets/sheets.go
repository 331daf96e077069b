// Package sheets exports selected trades to a Google Sheet. The sheet
// is an operator-facing journal keyed by export tag; it is never read
// back for replication decisions.
package sheets

import (
	"context"
	"encoding/base64"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/oauth2/google"
	sheetsapi "google.golang.org/api/sheets/v4"
	"google.golang.org/api/option"

	"copytraderv1/internal/model"
)

const spreadsheetScope = "https://www.googleapis.com/auth/spreadsheets"

// tagColumn is the last column of an exported row; ListTags reads it
// back for the tag picker.
const tagColumn = 8

// Exporter appends trade rows to one sheet of one spreadsheet.
type Exporter struct {
	mu            sync.Mutex
	srv           *sheetsapi.Service
	spreadsheetID string
	sheetName     string
}

// New authenticates a service account from a base64-encoded JSON key
// and binds the exporter to a spreadsheet/sheet pair.
func New(ctx context.Context, keyJSONBase64, spreadsheetID, sheetName string) (*Exporter, error) {
	credBytes, err := base64.StdEncoding.DecodeString(keyJSONBase64)
	if err != nil {
		return nil, fmt.Errorf("decode service account key: %w", err)
	}

	config, err := google.JWTConfigFromJSON(credBytes, spreadsheetScope)
	if err != nil {
		return nil, fmt.Errorf("parse service account key: %w", err)
	}

	srv, err := sheetsapi.NewService(ctx, option.WithHTTPClient(config.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	return &Exporter{
		srv:           srv,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
	}, nil
}

// AppendTrades appends one row per trade, all stamped with the same
// export tag.
func (e *Exporter) AppendTrades(ctx context.Context, trades []model.Trade, tag string) error {
	if len(trades) == 0 {
		return nil
	}

	values := make([][]interface{}, 0, len(trades))
	for _, t := range trades {
		values = append(values, tradeRow(t, tag))
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	row := &sheetsapi.ValueRange{Values: values}
	response, err := e.srv.Spreadsheets.Values.Append(e.spreadsheetID, e.sheetName, row).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("append rows: %w", err)
	}
	if response.HTTPStatusCode != 200 {
		return fmt.Errorf("append rows: http status %d", response.HTTPStatusCode)
	}
	return nil
}

// ListTags returns the distinct export tags present in the sheet,
// sorted ascending.
func (e *Exporter) ListTags(ctx context.Context) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	sheetRange := fmt.Sprintf("%s!A2:I", e.sheetName)
	response, err := e.srv.Spreadsheets.Values.Get(e.spreadsheetID, sheetRange).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read sheet: %w", err)
	}

	seen := make(map[string]struct{})
	for _, row := range response.Values {
		if len(row) <= tagColumn {
			continue
		}
		tag, ok := row[tagColumn].(string)
		if !ok || tag == "" {
			continue
		}
		seen[tag] = struct{}{}
	}

	tags := make([]string, 0, len(seen))
	for tag := range seen {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags, nil
}

func tradeRow(t model.Trade, tag string) []interface{} {
	return []interface{}{
		t.Timestamp,
		t.AccountID,
		t.TradeID,
		t.Symbol,
		t.Quantity,
		t.Price,
		t.OrderType,
		t.ProductType,
		tag,
	}
}
