package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/noah-isme/sponsor-api/internal/common"
	"github.com/noah-isme/sponsor-api/internal/sheet"
)

// Public ledger columns.
const (
	LedgerTimestamp       = "Timestamp"
	LedgerEmailAddress    = "Email Address"
	LedgerSponsorName     = "Sponsor Name"
	LedgerSponsorEmail    = "Sponsor Email"
	LedgerCategory        = "Category"
	LedgerTier            = "Tier"
	LedgerBookTitle       = "Book Title"
	LedgerStatus          = "Status"
	LedgerDateConfirmed   = "Date Confirmed"
	LedgerSponsorshipType = "Sponsorship Type"
	LedgerNotes           = "Notes"
	LedgerReferral        = "Referral"
	LedgerTeamMember      = "TeamMember"
)

// LedgerHeaders seeds an empty public ledger.
var LedgerHeaders = []string{
	LedgerTimestamp, LedgerEmailAddress, LedgerSponsorName, LedgerSponsorEmail, LedgerCategory, LedgerTier,
	LedgerBookTitle, LedgerStatus, LedgerDateConfirmed, LedgerSponsorshipType, LedgerNotes,
}

var ledgerRequired = []string{LedgerBookTitle, LedgerSponsorEmail, LedgerStatus, LedgerDateConfirmed}

// LedgerEntry is one pending intake row mirrored from a new order.
type LedgerEntry struct {
	Timestamp    time.Time
	SponsorName  string
	SponsorEmail string
	BookTitle    string
	Referral     string
	TeamMember   string
}

// Confirmation describes what Confirm did for one title.
type Confirmation struct {
	Title   string
	Row     int
	Matched bool
	Updated bool
}

// Ledger is the human-curated public sponsorship ledger.
type Ledger struct {
	Book  sheet.Book
	Sheet string
}

// AppendIntake mirrors new line items as Pending rows. The header row is only
// seeded when the ledger is empty; Referral and TeamMember are written only
// when an operator has added those columns.
func (l Ledger) AppendIntake(ctx context.Context, entries ...LedgerEntry) error {
	t, err := l.Book.EnsureTable(ctx, l.Sheet)
	if err != nil {
		return err
	}
	snap, err := sheet.Load(ctx, t)
	if err != nil {
		return err
	}
	cols := snap.Columns
	if len(cols) == 0 {
		if cols, err = sheet.EnsureHeaders(ctx, t, LedgerHeaders); err != nil {
			return err
		}
	}
	for _, e := range entries {
		row := cols.Row(map[string]string{
			LedgerTimestamp:    formatTime(e.Timestamp),
			LedgerSponsorName:  e.SponsorName,
			LedgerSponsorEmail: e.SponsorEmail,
			LedgerBookTitle:    e.BookTitle,
			LedgerStatus:       StatusPending,
			LedgerReferral:     e.Referral,
			LedgerTeamMember:   e.TeamMember,
		})
		if err := t.AppendRow(ctx, row); err != nil {
			return err
		}
	}
	return nil
}

// Confirm marks the first unpaid ledger row matching each title and the
// sponsor email as Paid, stamping Date Confirmed. When every match is already
// Paid the first one is reported unchanged, so repeated confirmations are
// no-ops. Titles without a match are skipped, and a call with nothing to
// confirm never opens the ledger.
func (l Ledger) Confirm(ctx context.Context, email string, titles []string, at time.Time) ([]Confirmation, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	out := make([]Confirmation, 0, len(titles))
	pending := false
	for _, title := range titles {
		title = strings.TrimSpace(title)
		out = append(out, Confirmation{Title: title})
		pending = pending || (title != "" && email != "")
	}
	if !pending {
		return out, nil
	}

	t, err := l.Book.Table(ctx, l.Sheet)
	if err != nil {
		if errors.Is(err, sheet.ErrNoSheet) {
			return nil, common.Errorf(common.ErrMissingHeaders, "Missing sheet: %s", l.Sheet)
		}
		return nil, err
	}
	snap, err := sheet.Load(ctx, t)
	if err != nil {
		return nil, err
	}
	if missing := snap.Columns.Missing(ledgerRequired...); len(missing) > 0 {
		return nil, common.Errorf(common.ErrMissingHeaders, "Missing expected headers in %q: %s", l.Sheet, strings.Join(missing, ", "))
	}

	for n := range out {
		res := &out[n]
		if res.Title == "" || email == "" {
			continue
		}
		i, paid := findSponsorRow(snap, res.Title, email)
		if i < 0 {
			continue
		}
		res.Matched = true
		res.Row = snap.Ref(i)
		if paid {
			continue
		}
		if err := sheet.SetField(ctx, t, snap.Columns, res.Row, LedgerStatus, StatusPaid); err != nil {
			return out[:n], err
		}
		if err := sheet.SetField(ctx, t, snap.Columns, res.Row, LedgerDateConfirmed, formatTime(at)); err != nil {
			return out[:n], err
		}
		res.Updated = true
		setCell(snap, i, LedgerStatus, StatusPaid)
	}
	return out, nil
}

// findSponsorRow returns the first unpaid row for title and email, falling
// back to the first paid one. It returns -1 when nothing matches.
func findSponsorRow(snap sheet.Snapshot, title, email string) (int, bool) {
	first := -1
	for i, cells := range snap.Data {
		if snap.Columns.Get(cells, LedgerBookTitle) != title {
			continue
		}
		if strings.ToLower(snap.Columns.Get(cells, LedgerSponsorEmail)) != email {
			continue
		}
		if !IsPaid(snap.Columns.Get(cells, LedgerStatus)) {
			return i, false
		}
		if first < 0 {
			first = i
		}
	}
	return first, first >= 0
}

// setCell keeps the in-memory snapshot in step with writes made during one call.
func setCell(snap sheet.Snapshot, i int, name, value string) {
	idx, ok := snap.Columns.Index(name)
	if !ok {
		return
	}
	for len(snap.Data[i]) <= idx {
		snap.Data[i] = append(snap.Data[i], "")
	}
	snap.Data[i][idx] = value
}
