package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/lib/pq"
)

// DomainStat is the per-domain slice of a daily metric.
type DomainStat struct {
	ActiveMinutes  float64 `json:"activeMinutes"`
	ScrollDistance int64   `json:"scrollDistance"`
	Clicks         int64   `json:"clicks"`
}

// DailyMetric is the per-(user, date) aggregate. It is always recomputed from
// the full raw-event window, never patched incrementally, which is what makes
// the aggregation job idempotent.
type DailyMetric struct {
	UserID         string                `json:"userId"`
	Date           string                `json:"date"` // YYYY-MM-DD, UTC
	ScrollDistance int64                 `json:"scrollDistance"`
	ActiveMinutes  float64               `json:"activeMinutes"`
	IdleMinutes    float64               `json:"idleMinutes"`
	ClickCount     int64                 `json:"clickCount"`
	ByDomain       map[string]DomainStat `json:"byDomain"`
	ByHour         [24]float64           `json:"byHour"` // active minutes per hour-of-day
	ComputedAt     time.Time             `json:"computedAt"`
}

// metricTotals is the canonical subset hashed into the signature. Breakdown
// maps are excluded so map iteration order can never change the hash.
type metricTotals struct {
	ScrollDistance int64   `json:"scrollDistance"`
	ActiveMinutes  float64 `json:"activeMinutes"`
	IdleMinutes    float64 `json:"idleMinutes"`
	ClickCount     int64   `json:"clickCount"`
}

// Signature returns a stable fingerprint of the metric totals, used to detect
// that nothing materially changed since the last generated insight.
func (m DailyMetric) Signature() string {
	data, _ := json.Marshal(metricTotals{
		ScrollDistance: m.ScrollDistance,
		ActiveMinutes:  m.ActiveMinutes,
		IdleMinutes:    m.IdleMinutes,
		ClickCount:     m.ClickCount,
	})
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Insight is a generated natural-language reading of a daily metric. Never
// mutated after creation; later insights supersede earlier ones.
type Insight struct {
	ID              string         `json:"id"`
	UserID          string         `json:"userId"`
	MetricDate      string         `json:"metricDate"`
	Title           string         `json:"title"`
	Body            string         `json:"body"`
	Tags            pq.StringArray `json:"tags"`
	MetricSignature string         `json:"metricSignature"`
	CreatedAt       time.Time      `json:"createdAt"`
}
