package venue

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/venuebook/internal/book"
)

// Number decodes a JSON number or a JSON string holding a number. NaN and
// infinities are rejected.
func Number(raw json.RawMessage) (float64, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return 0, false
	}
	text := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &text); err != nil {
			return 0, false
		}
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// ApplyPairs applies [price, size, ...] tuples to side. Entries that do not
// parse, non-positive prices and negative sizes are skipped; a zero size
// removes the level.
func ApplyPairs(side *book.Side, entries [][]json.RawMessage) {
	for _, e := range entries {
		if len(e) < 2 {
			continue
		}
		price, ok := Number(e[0])
		if !ok || price <= 0 {
			continue
		}
		size, ok := Number(e[1])
		if !ok || size < 0 {
			continue
		}
		side.Apply(price, size)
	}
}

// Millis converts a venue millisecond timestamp, falling back to now when
// ms is not positive.
func Millis(ms int64, now func() time.Time) time.Time {
	if ms > 0 {
		return time.UnixMilli(ms)
	}
	return now()
}
