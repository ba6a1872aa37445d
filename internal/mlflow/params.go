package mlflow

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/databricks/databricks-sdk-go/service/ml"
)

// MLflow rejects longer parameter values.
const maxParamValueLength = 6000

// truncateParamValue cuts value to at most maxParamValueLength bytes without
// splitting a UTF-8 sequence.
func truncateParamValue(value string) string {
	if len(value) <= maxParamValueLength {
		return value
	}
	cut := maxParamValueLength
	for cut > 0 && !utf8.RuneStart(value[cut]) {
		cut--
	}
	return value[:cut]
}

func (c *Client) LogParam(ctx context.Context, runID string, key string, value string) error {
	err := c.client.Experiments.LogParam(ctx, ml.LogParam{
		RunId: runID,
		Key:   key,
		Value: value,
	})
	if err != nil {
		return fmt.Errorf("failed to log parameter %s: %w", key, err)
	}

	return nil
}

func (c *Client) LogParams(ctx context.Context, runID string, params []Param) error {
	for _, param := range params {
		if err := c.LogParam(ctx, runID, param.Key, param.Value); err != nil {
			return err
		}
	}

	return nil
}
