// Package stats aggregates ticket counts for the dashboard.
package stats

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/spec-kit/ticket-tracker/internal/domain"
)

// Breakdown is a count per enumeration value. Every key is always present and
// JSON output follows the enumeration order.
type Breakdown[K ~string] struct {
	keys   []K
	counts map[K]int
}

func newBreakdown[K ~string](keys []K) Breakdown[K] {
	counts := make(map[K]int, len(keys))
	for _, k := range keys {
		counts[k] = 0
	}
	return Breakdown[K]{keys: keys, counts: counts}
}

func (b Breakdown[K]) add(k K) {
	if _, ok := b.counts[k]; ok {
		b.counts[k]++
	}
}

// Get returns the count for k.
func (b Breakdown[K]) Get(k K) int {
	return b.counts[k]
}

// Keys returns the keys in enumeration order.
func (b Breakdown[K]) Keys() []K {
	return append([]K(nil), b.keys...)
}

// Sum adds up all counts.
func (b Breakdown[K]) Sum() int {
	total := 0
	for _, c := range b.counts {
		total += c
	}
	return total
}

// MarshalJSON writes an object whose keys follow the enumeration order.
func (b Breakdown[K]) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range b.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(string(k))
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.WriteString(jsonInt(b.counts[k]))
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func jsonInt(n int) string {
	out, _ := json.Marshal(n)
	return string(out)
}

// Report is the fixed-shape statistics payload.
type Report struct {
	Total     int                              `json:"total_tickets"`
	Open      int                              `json:"open_tickets"`
	Overdue   int                              `json:"overdue_tickets"`
	AvgPerDay float64                          `json:"avg_tickets_per_day"`
	Priority  Breakdown[domain.TicketPriority] `json:"priority_breakdown"`
	Category  Breakdown[domain.TicketCategory] `json:"category_breakdown"`
	Status    Breakdown[domain.TicketStatus]   `json:"status_breakdown"`
}

// Compute aggregates the given tickets. Overdue state and creation dates are
// evaluated against now and its location, so results shift with the clock.
func Compute(tickets []domain.Ticket, now time.Time) Report {
	report := Report{
		Total:    len(tickets),
		Priority: newBreakdown(domain.Priorities),
		Category: newBreakdown(domain.Categories),
		Status:   newBreakdown(domain.Statuses),
	}

	days := make(map[time.Time]struct{})
	for i := range tickets {
		t := &tickets[i]
		if t.Status == domain.StatusOpen {
			report.Open++
		}
		if t.IsOverdue(now) {
			report.Overdue++
		}
		report.Priority.add(t.Priority)
		report.Category.add(t.Category)
		report.Status.add(t.Status)
		days[domain.CalendarDate(t.CreatedAt.In(now.Location()))] = struct{}{}
	}

	report.AvgPerDay = averagePerDay(report.Total, len(days))
	return report
}

// exactDigits is enough fractional digits to print any float64 exactly.
const exactDigits = 1074

// averagePerDay rounds the float64 quotient to one decimal, half to even on
// its exact binary value. 3/20 is stored just below 0.15 and rounds to 0.1.
func averagePerDay(total, days int) float64 {
	if days == 0 {
		return 0
	}
	quotient := float64(total) / float64(days)
	exact := decimal.RequireFromString(strconv.FormatFloat(quotient, 'f', exactDigits, 64))
	return exact.RoundBank(1).InexactFloat64()
}
