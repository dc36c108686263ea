package insight

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"browsepulse/internal/models"

	"go.uber.org/zap"
)

// HTTPGenerator delegates phrasing to an external completion endpoint that
// accepts the metric as JSON and answers with title/body/tags.
type HTTPGenerator struct {
	endpoint   string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewHTTPGenerator creates the generator.
func NewHTTPGenerator(endpoint string, timeout time.Duration, logger *zap.Logger) *HTTPGenerator {
	return &HTTPGenerator{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// Generate calls the endpoint.
func (g *HTTPGenerator) Generate(ctx context.Context, metric models.DailyMetric) (Generated, error) {
	jsonData, err := json.Marshal(metric)
	if err != nil {
		return Generated{}, fmt.Errorf("failed to marshal metric: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return Generated{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return Generated{}, fmt.Errorf("generation request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Generated{}, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Generated{}, fmt.Errorf("generation endpoint returned status %d: %s", resp.StatusCode, string(body))
	}

	var result Generated
	if err := json.Unmarshal(body, &result); err != nil {
		return Generated{}, fmt.Errorf("failed to parse generation response: %w", err)
	}

	g.logger.Debug("Insight text generated",
		zap.String("user_id", metric.UserID),
		zap.String("date", metric.Date),
	)

	return result, nil
}
