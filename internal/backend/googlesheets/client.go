// Package googlesheets implements the service.Sheets interface using the Google Sheets API.
package googlesheets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	sheets "google.golang.org/api/sheets/v4"

	"sheetrow/internal/config"
	"sheetrow/internal/service"
)

const (
	// APITimeout is the timeout for API calls.
	APITimeout = 15 * time.Second

	// Scope is the OAuth scope for reading and writing spreadsheets.
	Scope = "https://www.googleapis.com/auth/spreadsheets"
)

// Client implements service.Sheets using the Google Sheets API.
type Client struct {
	svc *sheets.Service
}

// New creates a new Google Sheets client.
// Requires oauth_client.json and token.json to exist.
func New(ctx context.Context, cfg *config.Config) (*Client, error) {
	// Load OAuth client config
	clientJSON, err := os.ReadFile(cfg.OAuthClientPath())
	if err != nil {
		return nil, fmt.Errorf("failed to read oauth_client.json: %w", err)
	}

	oauthConfig, err := google.ConfigFromJSON(clientJSON, Scope)
	if err != nil {
		return nil, fmt.Errorf("invalid oauth_client.json: %w", err)
	}

	// Load token
	tokenData, err := os.ReadFile(cfg.TokenPath())
	if err != nil {
		return nil, fmt.Errorf("failed to read token.json: %w", err)
	}

	var token oauth2.Token
	if err := json.Unmarshal(tokenData, &token); err != nil {
		return nil, fmt.Errorf("invalid token.json: %w", err)
	}

	// Token source refreshes automatically
	httpClient := oauth2.NewClient(ctx, oauthConfig.TokenSource(ctx, &token))
	return NewWithHTTPClient(ctx, httpClient)
}

// NewWithHTTPClient creates a client with a custom HTTP client (for testing).
func NewWithHTTPClient(ctx context.Context, httpClient *http.Client, opts ...option.ClientOption) (*Client, error) {
	opts = append([]option.ClientOption{option.WithHTTPClient(httpClient)}, opts...)
	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}
	return &Client{svc: svc}, nil
}

// ReadSelection returns the unformatted cell values of ref.
// Trailing empty cells are omitted by the API, so rows may be ragged.
func (c *Client) ReadSelection(ctx context.Context, ref service.SheetRef) ([][]any, error) {
	ctx, cancel := context.WithTimeout(ctx, APITimeout)
	defer cancel()

	rng := ref.Range
	if rng == "" {
		// Whole first sheet
		rng = "A:ZZZ"
	}
	resp, err := c.svc.Spreadsheets.Values.Get(ref.Spreadsheet, rng).
		ValueRenderOption("UNFORMATTED_VALUE").
		MajorDimension("ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return nil, wrapError(err)
	}
	return resp.Values, nil
}

// WriteSheet adds a new sheet to the spreadsheet and fills it with grid
// starting at A1. A taken title gets " (2)", " (3)", ... appended.
func (c *Client) WriteSheet(ctx context.Context, ref service.SheetRef, name string, grid [][]any) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, APITimeout)
	defer cancel()

	ss, err := c.svc.Spreadsheets.Get(ref.Spreadsheet).
		Fields("sheets.properties.title").
		Context(ctx).
		Do()
	if err != nil {
		return "", wrapError(err)
	}
	existing := make([]string, 0, len(ss.Sheets))
	for _, sh := range ss.Sheets {
		if sh.Properties != nil {
			existing = append(existing, sh.Properties.Title)
		}
	}
	title := UniqueTitle(name, existing)

	add := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			AddSheet: &sheets.AddSheetRequest{
				Properties: &sheets.SheetProperties{Title: title},
			},
		}},
	}
	reply, err := c.svc.Spreadsheets.BatchUpdate(ref.Spreadsheet, add).Context(ctx).Do()
	if err != nil {
		return "", wrapError(err)
	}

	values := &sheets.ValueRange{Values: grid}
	_, err = c.svc.Spreadsheets.Values.Update(ref.Spreadsheet, A1(title, "A1"), values).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		werr := wrapError(err)
		if derr := c.removeSheet(ctx, ref.Spreadsheet, reply); derr != nil {
			return "", fmt.Errorf("%w (empty sheet %q left behind: %v)", werr, title, derr)
		}
		return "", werr
	}
	return title, nil
}

// removeSheet deletes the sheet created by an AddSheet reply. It runs on its
// own deadline so a write that timed out can still be undone.
func (c *Client) removeSheet(ctx context.Context, spreadsheet string, reply *sheets.BatchUpdateSpreadsheetResponse) error {
	if reply == nil || len(reply.Replies) == 0 || reply.Replies[0].AddSheet == nil ||
		reply.Replies[0].AddSheet.Properties == nil {
		return errors.New("sheet id missing from reply")
	}
	id := reply.Replies[0].AddSheet.Properties.SheetId

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), APITimeout)
	defer cancel()

	del := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			DeleteSheet: &sheets.DeleteSheetRequest{SheetId: id, ForceSendFields: []string{"SheetId"}},
		}},
	}
	_, err := c.svc.Spreadsheets.BatchUpdate(spreadsheet, del).Context(ctx).Do()
	return err
}

// UniqueTitle returns name, or name with the lowest free " (N)" suffix if
// name is already one of existing. Sheet titles compare case-insensitively.
func UniqueTitle(name string, existing []string) string {
	taken := make(map[string]bool, len(existing))
	for _, t := range existing {
		taken[strings.ToLower(t)] = true
	}
	title := name
	for n := 2; taken[strings.ToLower(title)]; n++ {
		title = fmt.Sprintf("%s (%d)", name, n)
	}
	return title
}

// A1 builds an A1 range on the named sheet, quoting the name.
func A1(sheet, cells string) string {
	return "'" + strings.ReplaceAll(sheet, "'", "''") + "'!" + cells
}

// wrapError wraps API errors with user-friendly messages.
func wrapError(err error) error {
	if err == nil {
		return nil
	}

	// Check for timeout
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("sheets request timed out")
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusUnauthorized:
			return &service.AuthError{StatusCode: apiErr.Code, Message: "Google token expired or revoked (run: sheetrow login)"}
		case http.StatusForbidden:
			return &service.AuthError{StatusCode: apiErr.Code, Message: "no access to spreadsheet: " + apiErr.Message}
		case http.StatusNotFound:
			return fmt.Errorf("spreadsheet %w", service.ErrNotFound)
		case http.StatusBadRequest:
			return fmt.Errorf("sheets request rejected: %s", apiErr.Message)
		}
	}
	return err
}
