package capture

import (
	"slices"
	"strings"

	"github.com/zombor/receipt-capture/internal/scanning"
)

// Normalize maps an untrusted extraction onto a draft. It never fails:
// unknown categories and methods fall back to the first member of their list,
// and the amount keeps only digits and a single decimal point.
func Normalize(res *scanning.ExtractionResult, categories, methods []string) Draft {
	if res == nil {
		res = &scanning.ExtractionResult{}
	}

	d := Draft{
		Amount:   SanitizeAmount(res.Amount.String()),
		Category: pick(res.Category, categories),
		Method:   pick(res.PaymentMethod, methods),
	}

	switch {
	case res.Merchant.Present():
		d.Description = strings.TrimSpace(res.Merchant.String())
	case res.Notes.Present():
		d.Description = strings.TrimSpace(res.Notes.String())
	}

	return d
}

// SanitizeAmount strips everything but digits and the last '.', so that a
// currency prefix like "Rs." does not become the decimal point.
func SanitizeAmount(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' {
			b.WriteRune(r)
		}
	}
	out := b.String()
	last := strings.LastIndex(out, ".")
	if last == -1 {
		return out
	}
	return strings.ReplaceAll(out[:last], ".", "") + out[last:]
}

func pick(value scanning.Field, set []string) string {
	v := strings.TrimSpace(value.String())
	if value.Valid && slices.Contains(set, v) {
		return v
	}
	return first(set)
}

func first(set []string) string {
	if len(set) == 0 {
		return ""
	}
	return set[0]
}
