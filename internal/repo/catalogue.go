package repo

import (
	"context"
	"strings"

	"github.com/noah-isme/sponsor-api/internal/sheet"
)

// Catalogue columns.
const (
	CatalogueBookID = "BookID"
	CatalogueTitle  = "Book Title"
)

// LegacyBookID is the synthetic item recorded for legacy sponsorships.
const LegacyBookID = "LEGACY"

// TeamMember is a referral partner listed on the team sheet.
type TeamMember struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Catalogue reads the read-only catalogue and team sheets.
type Catalogue struct {
	Book      sheet.Book
	Sheet     string
	TeamSheet string
}

// Records flattens every catalogue row into header -> trimmed value. A missing
// sheet is reported as sheet.ErrNoSheet; a sheet without data rows yields none.
func (c Catalogue) Records(ctx context.Context) ([]map[string]string, error) {
	t, err := c.Book.Table(ctx, c.Sheet)
	if err != nil {
		return nil, err
	}
	snap, err := sheet.Load(ctx, t)
	if err != nil {
		return nil, err
	}
	records := make([]map[string]string, 0, len(snap.Data))
	for _, cells := range snap.Data {
		rec := make(map[string]string, len(snap.Header))
		for i, name := range snap.Header {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			value := ""
			if i < len(cells) {
				value = strings.TrimSpace(cells[i])
			}
			rec[name] = value
		}
		records = append(records, rec)
	}
	return records, nil
}

// Titles maps BookID to Book Title. A missing sheet or columns yields an empty map.
func (c Catalogue) Titles(ctx context.Context) (map[string]string, error) {
	out := map[string]string{}
	t, err := c.Book.Table(ctx, c.Sheet)
	if err != nil {
		if isNoSheet(err) {
			return out, nil
		}
		return nil, err
	}
	snap, err := sheet.Load(ctx, t)
	if err != nil {
		return nil, err
	}
	if !snap.Columns.Has(CatalogueBookID, CatalogueTitle) {
		return out, nil
	}
	for _, cells := range snap.Data {
		id := snap.Columns.Get(cells, CatalogueBookID)
		if id == "" {
			continue
		}
		out[id] = snap.Columns.Get(cells, CatalogueTitle)
	}
	return out, nil
}

// Team lists members from the first two columns of the team sheet, skipping
// rows where either value is blank.
func (c Catalogue) Team(ctx context.Context) ([]TeamMember, error) {
	t, err := c.Book.Table(ctx, c.TeamSheet)
	if err != nil {
		if isNoSheet(err) {
			return []TeamMember{}, nil
		}
		return nil, err
	}
	rows, err := t.Rows(ctx)
	if err != nil {
		return nil, err
	}
	out := []TeamMember{}
	for i, cells := range rows {
		if i == 0 || len(cells) < 2 {
			continue
		}
		name, email := strings.TrimSpace(cells[0]), strings.TrimSpace(cells[1])
		if name == "" || email == "" {
			continue
		}
		out = append(out, TeamMember{Name: name, Email: email})
	}
	return out, nil
}
