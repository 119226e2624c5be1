package repo_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sponsor-api/internal/common"
	"github.com/noah-isme/sponsor-api/internal/events"
	"github.com/noah-isme/sponsor-api/internal/repo"
	"github.com/noah-isme/sponsor-api/internal/sheet"
)

func seedLedger(book *sheet.Memory, rows ...[]string) {
	all := append([][]string{repo.LedgerHeaders}, rows...)
	book.Seed("Sponsorship Requests", all...)
}

func ledgerRow(email, title, status string) []string {
	return []string{"", "", "Sponsor", email, "", "", title, status, "", "", ""}
}

func TestLedgerConfirmIsIdempotent(t *testing.T) {
	ctx := context.Background()
	book := sheet.NewMemory()
	seedLedger(book, ledgerRow("Ada@Example.com", "Dune", "Pending"))
	ledger := repo.Ledger{Book: book, Sheet: "Sponsorship Requests"}

	first := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	res, err := ledger.Confirm(ctx, "ada@example.COM", []string{"Dune"}, first)
	require.NoError(t, err)
	require.True(t, res[0].Updated)

	res, err = ledger.Confirm(ctx, "ada@example.com", []string{"Dune"}, first.Add(time.Hour))
	require.NoError(t, err)
	require.True(t, res[0].Matched)
	require.False(t, res[0].Updated)

	tbl, err := book.Table(ctx, "Sponsorship Requests")
	require.NoError(t, err)
	snap, err := sheet.Load(ctx, tbl)
	require.NoError(t, err)
	require.Equal(t, "Paid", snap.Columns.Get(snap.Data[0], repo.LedgerStatus))
	require.Equal(t, "2024-03-01T09:00:00Z", snap.Columns.Get(snap.Data[0], repo.LedgerDateConfirmed))
}

func TestLedgerConfirmPrefersUnpaidMatch(t *testing.T) {
	ctx := context.Background()
	book := sheet.NewMemory()
	seedLedger(book,
		ledgerRow("ada@example.com", "Dune", "Paid"),
		ledgerRow("ada@example.com", "Dune", "Pending"),
		ledgerRow("ada@example.com", "Dune", "Pending"),
		ledgerRow("bob@example.com", "Emma", "Pending"),
	)
	ledger := repo.Ledger{Book: book, Sheet: "Sponsorship Requests"}

	res, err := ledger.Confirm(ctx, "ada@example.com", []string{"Dune", "Emma", ""}, time.Now())
	require.NoError(t, err)
	require.Len(t, res, 3)
	require.Equal(t, 3, res[0].Row)
	require.True(t, res[0].Updated)
	require.False(t, res[1].Matched)
	require.False(t, res[2].Matched)

	tbl, _ := book.Table(ctx, "Sponsorship Requests")
	snap, err := sheet.Load(ctx, tbl)
	require.NoError(t, err)
	require.Equal(t, "Paid", snap.Columns.Get(snap.Data[1], repo.LedgerStatus))
	require.Equal(t, "Pending", snap.Columns.Get(snap.Data[2], repo.LedgerStatus))
	require.Equal(t, "Pending", snap.Columns.Get(snap.Data[3], repo.LedgerStatus))

	// A title repeated within one order confirms one row per occurrence.
	res, err = ledger.Confirm(ctx, "ada@example.com", []string{"Dune", "Dune"}, time.Now())
	require.NoError(t, err)
	require.Equal(t, 4, res[0].Row)
	require.True(t, res[0].Updated)
	require.Equal(t, 2, res[1].Row)
	require.False(t, res[1].Updated)
}

func TestLedgerConfirmNothingToConfirm(t *testing.T) {
	ledger := repo.Ledger{Book: sheet.NewMemory(), Sheet: "Sponsorship Requests"}

	res, err := ledger.Confirm(context.Background(), "ada@example.com", nil, time.Now())
	require.NoError(t, err)
	require.Empty(t, res)

	res, err = ledger.Confirm(context.Background(), " ", []string{"Dune"}, time.Now())
	require.NoError(t, err)
	require.Equal(t, []repo.Confirmation{{Title: "Dune"}}, res)
}

func TestLedgerConfirmMissingHeaders(t *testing.T) {
	ctx := context.Background()
	book := sheet.NewMemory()
	book.Seed("Sponsorship Requests", []string{"Book Title", "Sponsor Email", "Status"})
	ledger := repo.Ledger{Book: book, Sheet: "Sponsorship Requests"}

	_, err := ledger.Confirm(ctx, "a@b.c", []string{"Dune"}, time.Now())
	require.True(t, errors.Is(err, common.ErrMissingHeaders))
	require.ErrorContains(t, err, "Date Confirmed")

	_, err = repo.Ledger{Book: book, Sheet: "Other"}.Confirm(ctx, "a@b.c", []string{"Dune"}, time.Now())
	require.True(t, errors.Is(err, common.ErrMissingHeaders))
}

func TestLedgerAppendIntake(t *testing.T) {
	ctx := context.Background()
	book := sheet.NewMemory()
	ledger := repo.Ledger{Book: book, Sheet: "Sponsorship Requests"}

	require.NoError(t, ledger.AppendIntake(ctx, repo.LedgerEntry{
		SponsorName: "Ada", SponsorEmail: "ada@example.com", BookTitle: "Dune", Referral: "dropped",
	}))

	tbl, _ := book.Table(ctx, "Sponsorship Requests")
	snap, err := sheet.Load(ctx, tbl)
	require.NoError(t, err)
	require.Equal(t, repo.LedgerHeaders, snap.Header)
	require.Equal(t, "Pending", snap.Columns.Get(snap.Data[0], repo.LedgerStatus))
	require.Equal(t, "Dune", snap.Columns.Get(snap.Data[0], repo.LedgerBookTitle))

	book.Seed("Sponsorship Requests", append(append([]string{}, repo.LedgerHeaders...), "Referral"))
	require.NoError(t, ledger.AppendIntake(ctx, repo.LedgerEntry{SponsorEmail: "b@example.com", Referral: "friend"}))
	tbl, _ = book.Table(ctx, "Sponsorship Requests")
	snap, err = sheet.Load(ctx, tbl)
	require.NoError(t, err)
	require.Equal(t, "friend", snap.Columns.Get(snap.Data[0], repo.LedgerReferral))
}

func TestCatalogueReads(t *testing.T) {
	ctx := context.Background()
	book := sheet.NewMemory()
	cat := repo.Catalogue{Book: book, Sheet: "Public_Catalogue", TeamSheet: "VA Payout Summary"}

	_, err := cat.Records(ctx)
	require.ErrorIs(t, err, sheet.ErrNoSheet)
	titles, err := cat.Titles(ctx)
	require.NoError(t, err)
	require.Empty(t, titles)
	team, err := cat.Team(ctx)
	require.NoError(t, err)
	require.Empty(t, team)

	book.Seed("Public_Catalogue",
		[]string{"BookID", "Book Title", "Author", ""},
		[]string{" B1 ", " Dune ", "Herbert"},
	)
	book.Seed("VA Payout Summary",
		[]string{"Name", "Email"},
		[]string{"Ann", "ann@example.com"},
		[]string{"", "nobody@example.com"},
		[]string{"Solo"},
	)

	records, err := cat.Records(ctx)
	require.NoError(t, err)
	require.Equal(t, []map[string]string{{"BookID": "B1", "Book Title": "Dune", "Author": "Herbert"}}, records)

	titles, err = cat.Titles(ctx)
	require.NoError(t, err)
	require.Equal(t, map[string]string{"B1": "Dune"}, titles)

	team, err = cat.Team(ctx)
	require.NoError(t, err)
	require.Equal(t, []repo.TeamMember{{Name: "Ann", Email: "ann@example.com"}}, team)
}

func TestEventLogRoundTrip(t *testing.T) {
	ctx := context.Background()
	log := repo.EventLog{Book: sheet.NewMemory(), Sheet: "Order Events"}

	evs, err := log.ForOrder(ctx, "QZ-1")
	require.NoError(t, err)
	require.Empty(t, evs)

	at := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, log.InsertEvent(ctx, events.Event{ID: "e1", Topic: events.TopicOrderPaid, OrderID: "QZ-1", Payload: []byte(`{"a":1}`), OccurredAt: at}))
	require.NoError(t, log.InsertEvent(ctx, events.Event{ID: "e2", Topic: events.TopicOrderPaid, OrderID: "QZ-2", Payload: []byte(`{}`), OccurredAt: at}))

	evs, err = log.ForOrder(ctx, "QZ-1")
	require.NoError(t, err)
	require.Len(t, evs, 1)
	require.Equal(t, "e1", evs[0].ID)
	require.JSONEq(t, `{"a":1}`, string(evs[0].Payload))
	require.True(t, at.Equal(evs[0].OccurredAt))
}
