package repo

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cast"
)

// Status values shared by the order table and the public ledger.
const (
	StatusPending = "Pending"
	StatusPaid    = "Paid"
)

// IsPaid compares case-insensitively so rows written as PAID by older tooling count.
func IsPaid(status string) bool {
	return strings.EqualFold(strings.TrimSpace(status), StatusPaid)
}

// ParseAmount reads a money cell. Hand-edited cells may carry thousands
// separators or come back as plain numbers; unreadable cells are zero.
func ParseAmount(cell string) decimal.Decimal {
	cleaned := strings.ReplaceAll(strings.TrimSpace(cell), ",", "")
	if cleaned == "" {
		return decimal.Zero
	}
	if d, err := decimal.NewFromString(cleaned); err == nil {
		return d
	}
	f, err := cast.ToFloat64E(cleaned)
	if err != nil {
		return decimal.Zero
	}
	return decimal.NewFromFloat(f)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func parseTime(cell string) time.Time {
	if cell == "" {
		return time.Time{}
	}
	t, err := cast.ToTimeE(cell)
	if err != nil {
		return time.Time{}
	}
	return t
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
