package googlesheets

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"sheetrow/internal/service"
)

type fakeAPI struct {
	mu        sync.Mutex
	titles    []string
	added     []string
	updated   map[string][][]any
	inputOpt  string
	renderOpt string
	status    int
	failWrite int
	sheetIDs  map[int64]string
	deleted   []int64
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.status != 0 {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(f.status)
		_, _ = fmt.Fprintf(w, `{"error":{"code":%d,"message":"denied"}}`, f.status)
		return
	}

	path := r.URL.Path
	switch {
	case r.Method == http.MethodGet && strings.HasPrefix(path, "/v4/spreadsheets/doc-1/values/"):
		f.renderOpt = r.URL.Query().Get("valueRenderOption")
		_, _ = io.WriteString(w, `{"range":"Sheet1!A1:B3","majorDimension":"ROWS",
			"values":[["Name","Emp"],["Apple",150000],["Acme"]]}`)
	case r.Method == http.MethodGet && path == "/v4/spreadsheets/doc-1":
		var sheets []map[string]any
		for _, t := range f.titles {
			sheets = append(sheets, map[string]any{"properties": map[string]any{"title": t}})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"sheets": sheets})
	case r.Method == http.MethodPost && path == "/v4/spreadsheets/doc-1:batchUpdate":
		var body struct {
			Requests []struct {
				AddSheet *struct {
					Properties struct {
						Title string `json:"title"`
					} `json:"properties"`
				} `json:"addSheet"`
				DeleteSheet *struct {
					SheetID int64 `json:"sheetId"`
				} `json:"deleteSheet"`
			} `json:"requests"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		var replies []map[string]any
		for _, req := range body.Requests {
			switch {
			case req.AddSheet != nil:
				title := req.AddSheet.Properties.Title
				if f.sheetIDs == nil {
					f.sheetIDs = map[int64]string{}
				}
				id := int64(100 + len(f.sheetIDs))
				f.sheetIDs[id] = title
				f.added = append(f.added, title)
				f.titles = append(f.titles, title)
				replies = append(replies, map[string]any{
					"addSheet": map[string]any{"properties": map[string]any{"sheetId": id, "title": title}},
				})
			case req.DeleteSheet != nil:
				id := req.DeleteSheet.SheetID
				f.deleted = append(f.deleted, id)
				for i, t := range f.titles {
					if t == f.sheetIDs[id] {
						f.titles = append(f.titles[:i], f.titles[i+1:]...)
						break
					}
				}
				replies = append(replies, map[string]any{})
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"spreadsheetId": "doc-1", "replies": replies})
	case r.Method == http.MethodPut && strings.HasPrefix(path, "/v4/spreadsheets/doc-1/values/") && f.failWrite != 0:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(f.failWrite)
		_, _ = fmt.Fprintf(w, `{"error":{"code":%d,"message":"write failed"}}`, f.failWrite)
	case r.Method == http.MethodPut && strings.HasPrefix(path, "/v4/spreadsheets/doc-1/values/"):
		var body struct {
			Values [][]any `json:"values"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.inputOpt = r.URL.Query().Get("valueInputOption")
		f.updated[strings.TrimPrefix(path, "/v4/spreadsheets/doc-1/values/")] = body.Values
		_, _ = io.WriteString(w, `{}`)
	default:
		http.NotFound(w, r)
	}
}

func newTestClient(t *testing.T, api *fakeAPI) *Client {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	c, err := NewWithHTTPClient(context.Background(), srv.Client(), option.WithEndpoint(srv.URL+"/"))
	require.NoError(t, err)
	return c
}

func TestReadSelection(t *testing.T) {
	api := &fakeAPI{}
	c := newTestClient(t, api)

	grid, err := c.ReadSelection(context.Background(), service.SheetRef{Spreadsheet: "doc-1", Range: "Sheet1!A1:B3"})
	require.NoError(t, err)
	assert.Equal(t, [][]any{{"Name", "Emp"}, {"Apple", float64(150000)}, {"Acme"}}, grid)
	assert.Equal(t, "UNFORMATTED_VALUE", api.renderOpt)
}

func TestWriteSheetPicksFreeTitle(t *testing.T) {
	api := &fakeAPI{titles: []string{"Sheet1", "Ranked"}, updated: map[string][][]any{}}
	c := newTestClient(t, api)

	grid := [][]any{{"Name", "score"}, {"Apple", 0.9}}
	title, err := c.WriteSheet(context.Background(), service.SheetRef{Spreadsheet: "doc-1"}, "Ranked", grid)
	require.NoError(t, err)
	assert.Equal(t, "Ranked (2)", title)
	assert.Equal(t, []string{"Ranked (2)"}, api.added)
	assert.Equal(t, "RAW", api.inputOpt)
	assert.Equal(t, [][]any{{"Name", "score"}, {"Apple", 0.9}}, api.updated["'Ranked (2)'!A1"])
}

func TestWriteSheetRemovesSheetWhenWriteFails(t *testing.T) {
	api := &fakeAPI{titles: []string{"Sheet1"}, updated: map[string][][]any{}, failWrite: http.StatusBadRequest}
	c := newTestClient(t, api)

	_, err := c.WriteSheet(context.Background(), service.SheetRef{Spreadsheet: "doc-1"}, "Ranked", [][]any{{"Name"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "write failed")
	assert.NotContains(t, err.Error(), "left behind")
	assert.Equal(t, []string{"Ranked"}, api.added)
	assert.Equal(t, []int64{100}, api.deleted)
	assert.Equal(t, []string{"Sheet1"}, api.titles)
	assert.Empty(t, api.updated)
}

func TestMissingSpreadsheet(t *testing.T) {
	c := newTestClient(t, &fakeAPI{})
	_, err := c.WriteSheet(context.Background(), service.SheetRef{Spreadsheet: "nope"}, "Ranked", nil)
	assert.ErrorIs(t, err, service.ErrNotFound)
}

func TestForbidden(t *testing.T) {
	c := newTestClient(t, &fakeAPI{status: http.StatusForbidden})
	_, err := c.ReadSelection(context.Background(), service.SheetRef{Spreadsheet: "doc-1", Range: "A1:B2"})
	assert.ErrorIs(t, err, service.ErrAuth)
}

func TestUniqueTitle(t *testing.T) {
	assert.Equal(t, "Ranked", UniqueTitle("Ranked", nil))
	assert.Equal(t, "Ranked (2)", UniqueTitle("Ranked", []string{"ranked"}))
	assert.Equal(t, "Ranked (3)", UniqueTitle("Ranked", []string{"Ranked", "Ranked (2)"}))
}

func TestA1(t *testing.T) {
	assert.Equal(t, "'Agent results'!A1", A1("Agent results", "A1"))
	assert.Equal(t, "'Bob''s'!A1:B2", A1("Bob's", "A1:B2"))
}
