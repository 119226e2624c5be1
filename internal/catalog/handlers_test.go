package catalog_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sponsor-api/internal/catalog"
	"github.com/noah-isme/sponsor-api/internal/repo"
	"github.com/noah-isme/sponsor-api/internal/sheet"
)

type envelope struct {
	OK       bool                `json:"ok"`
	Error    string              `json:"error"`
	Code     string              `json:"code"`
	Records  []map[string]string `json:"records"`
	TeamList []repo.TeamMember   `json:"teamList"`
}

func newCatalogue(book *sheet.Memory) repo.Catalogue {
	return repo.Catalogue{Book: book, Sheet: "Public_Catalogue", TeamSheet: "VA Payout Summary"}
}

func serve(t *testing.T, svc *catalog.Service) envelope {
	t.Helper()
	h := &catalog.Handler{Svc: svc}
	rec := httptest.NewRecorder()
	h.Catalogue(rec, httptest.NewRequest(http.MethodGet, "/api/v1/catalogue", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var out envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestCatalogueRecordsAndTeam(t *testing.T) {
	book := sheet.NewMemory()
	book.Seed("Public_Catalogue",
		[]string{"BookID", " Book Title ", "Author"},
		[]string{"B1", " Maths 1 ", "Ada"},
		[]string{"B2", "Science", ""},
	)
	book.Seed("VA Payout Summary",
		[]string{"Name", "Email"},
		[]string{"Thandi", "thandi@example.com"},
		[]string{"", "nobody@example.com"},
		[]string{"Sipho", "sipho@example.com"},
	)

	out := serve(t, &catalog.Service{Source: newCatalogue(book)})
	require.True(t, out.OK)
	require.Len(t, out.Records, 2)
	require.Equal(t, "Maths 1", out.Records[0]["Book Title"])
	require.Equal(t, "", out.Records[1]["Author"])
	require.Equal(t, []repo.TeamMember{
		{Name: "Thandi", Email: "thandi@example.com"},
		{Name: "Sipho", Email: "sipho@example.com"},
	}, out.TeamList)
}

func TestCatalogueHeaderOnlyYieldsNoRecords(t *testing.T) {
	book := sheet.NewMemory()
	book.Seed("Public_Catalogue", []string{"BookID", "Book Title"})

	out := serve(t, &catalog.Service{Source: newCatalogue(book)})
	require.True(t, out.OK)
	require.NotNil(t, out.Records)
	require.Empty(t, out.Records)
	require.Empty(t, out.TeamList)
}

func TestCatalogueMissingSheet(t *testing.T) {
	out := serve(t, &catalog.Service{Source: newCatalogue(sheet.NewMemory())})
	require.False(t, out.OK)
	require.Equal(t, "Missing sheet: Public_Catalogue", out.Error)
	require.Equal(t, "MISSING_SHEET", out.Code)
}

type flakyTeam struct{ repo.Catalogue }

func (flakyTeam) Team(context.Context) ([]repo.TeamMember, error) {
	return nil, errors.New("sheet offline")
}

func TestCatalogueTeamFailureDegrades(t *testing.T) {
	book := sheet.NewMemory()
	book.Seed("Public_Catalogue", []string{"BookID", "Book Title"}, []string{"B1", "Maths"})

	out := serve(t, &catalog.Service{Source: flakyTeam{newCatalogue(book)}})
	require.True(t, out.OK)
	require.Len(t, out.Records, 1)
	require.NotNil(t, out.TeamList)
	require.Empty(t, out.TeamList)
}

func TestCatalogueServedFromCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	book := sheet.NewMemory()
	table := book.Seed("Public_Catalogue", []string{"BookID", "Book Title"}, []string{"B1", "Maths"})
	cache := catalog.NewCache(client, time.Minute, "")
	svc := &catalog.Service{Source: newCatalogue(book), Cache: cache}

	first := serve(t, svc)
	require.Len(t, first.Records, 1)
	require.True(t, mr.Exists(catalog.DefaultCacheKey))

	require.NoError(t, table.AppendRow(context.Background(), []string{"B2", "Science"}))
	require.Len(t, serve(t, svc).Records, 1)

	require.NoError(t, cache.Invalidate(context.Background()))
	require.Len(t, serve(t, svc).Records, 2)
}
