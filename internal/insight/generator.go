// Package insight is the boundary to the external text-generation
// collaborator: metrics in, a short natural-language reading out.
package insight

import (
	"context"
	"fmt"
	"sort"

	"browsepulse/internal/models"
)

// Generated is the collaborator's output.
type Generated struct {
	Title string   `json:"title"`
	Body  string   `json:"body"`
	Tags  []string `json:"tags"`
}

// Generator turns a daily metric into insight text.
type Generator interface {
	Generate(ctx context.Context, metric models.DailyMetric) (Generated, error)
}

// TemplateGenerator phrases insights deterministically from the metric
// totals. The default when no external endpoint is configured.
type TemplateGenerator struct{}

// NewTemplateGenerator creates the generator.
func NewTemplateGenerator() *TemplateGenerator {
	return &TemplateGenerator{}
}

// Generate builds the insight text.
func (g *TemplateGenerator) Generate(_ context.Context, metric models.DailyMetric) (Generated, error) {
	topDomain, topMinutes := topDomainByActivity(metric)

	title := fmt.Sprintf("Your browsing on %s", metric.Date)
	body := fmt.Sprintf(
		"You were active for %.0f minutes with %d clicks and %d px of scrolling.",
		metric.ActiveMinutes, metric.ClickCount, metric.ScrollDistance,
	)
	tags := []string{"daily"}

	if topDomain != "" {
		body += fmt.Sprintf(" Most of it went to %s (%.0f minutes).", topDomain, topMinutes)
		tags = append(tags, "top-domain")
	}
	if metric.IdleMinutes > metric.ActiveMinutes && metric.IdleMinutes > 0 {
		body += fmt.Sprintf(" You were idle longer than active (%.0f minutes idle).", metric.IdleMinutes)
		tags = append(tags, "idle-heavy")
	}

	return Generated{Title: title, Body: body, Tags: tags}, nil
}

func topDomainByActivity(metric models.DailyMetric) (string, float64) {
	type entry struct {
		domain  string
		minutes float64
	}

	entries := make([]entry, 0, len(metric.ByDomain))
	for domain, stat := range metric.ByDomain {
		entries = append(entries, entry{domain: domain, minutes: stat.ActiveMinutes})
	}
	if len(entries) == 0 {
		return "", 0
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].minutes != entries[j].minutes {
			return entries[i].minutes > entries[j].minutes
		}
		return entries[i].domain < entries[j].domain
	})

	return entries[0].domain, entries[0].minutes
}
