package notice

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// PurchaseDateLayout renders dates the way en-GB locales print them
const PurchaseDateLayout = "02/01/2006, 15:04:05"

// GroupDigits formats v with thousands separators and at most three
// fraction digits, e.g. 49000 -> "49,000" and 1234.5 -> "1,234.5".
func GroupDigits(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	s := strconv.FormatFloat(math.Round(v*1000)/1000, 'f', -1, 64)
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	intPart, frac, hasFrac := strings.Cut(s, ".")

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if hasFrac {
		b.WriteByte('.')
		b.WriteString(frac)
	}
	return sign + b.String()
}

// DisplayAmount renders a loosely typed amount (as decoded from JSON) for an email body.
// Numbers are grouped, strings are passed through and nil renders empty.
func DisplayAmount(v interface{}) string {
	switch n := v.(type) {
	case nil:
		return ""
	case float64:
		return GroupDigits(n)
	case float32:
		return GroupDigits(float64(n))
	case int:
		return GroupDigits(float64(n))
	case int64:
		return GroupDigits(float64(n))
	case json.Number:
		if f, err := n.Float64(); err == nil {
			return GroupDigits(f)
		}
		return n.String()
	case string:
		return n
	default:
		return fmt.Sprint(n)
	}
}

func formatPurchaseDate(t time.Time, loc *time.Location) string {
	if loc != nil {
		t = t.In(loc)
	}
	return t.Format(PurchaseDateLayout)
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
