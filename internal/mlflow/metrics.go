package mlflow

import (
	"context"
	"fmt"
	"time"

	"github.com/databricks/databricks-sdk-go/service/ml"
)

func (c *Client) LogMetric(ctx context.Context, runID string, m Metric) error {
	timestamp := m.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	err := c.client.Experiments.LogMetric(ctx, ml.LogMetric{
		RunId:     runID,
		Key:       m.Key,
		Value:     m.Value,
		Timestamp: timestamp.UnixMilli(),
		Step:      m.Step,
	})
	if err != nil {
		return fmt.Errorf("failed to log metric %s: %w", m.Key, err)
	}

	return nil
}

// LogMetrics logs metrics one call each, in order.
func (c *Client) LogMetrics(ctx context.Context, runID string, metrics []Metric) error {
	for _, metric := range metrics {
		if err := c.LogMetric(ctx, runID, metric); err != nil {
			return err
		}
	}
	return nil
}
