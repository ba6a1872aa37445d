package parser

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/imishinist/fitlog/internal/models"
)

type yamlParametersFile struct {
	Parameters yaml.Node `yaml:"parameters"`
}

type yamlMetricPoint struct {
	Timestamp *time.Time `yaml:"timestamp"`
	Step      *int64     `yaml:"step"`
	Epoch     *int64     `yaml:"epoch"`
	Values    yaml.Node  `yaml:"values"`
}

type yamlMetricsFile struct {
	Metrics []yamlMetricPoint `yaml:"metrics"`
}

func ParseYAMLParams(reader io.Reader) (*models.Map, error) {
	var data yamlParametersFile
	decoder := yaml.NewDecoder(reader)

	if err := decoder.Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to parse YAML parameters: %w", err)
	}
	if data.Parameters.Kind == 0 {
		return nil, fmt.Errorf("%w: no \"parameters\" mapping", models.ErrInvalidValue)
	}

	m, err := mapFromNode(&data.Parameters)
	if err != nil {
		return nil, fmt.Errorf("failed to parse YAML parameters: %w", err)
	}
	return m, nil
}

func ParseYAMLMetrics(reader io.Reader) (*models.MetricsFile, error) {
	var data yamlMetricsFile
	decoder := yaml.NewDecoder(reader)

	if err := decoder.Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to parse YAML metrics: %w", err)
	}

	out := &models.MetricsFile{Metrics: make([]models.MetricPoint, 0, len(data.Metrics))}
	for i, p := range data.Metrics {
		point := models.MetricPoint{Timestamp: p.Timestamp, Step: p.Step, Epoch: p.Epoch}
		if p.Values.Kind != 0 {
			values, err := mapFromNode(&p.Values)
			if err != nil {
				return nil, fmt.Errorf("failed to parse YAML metrics: point %d: %w", i, err)
			}
			point.Values = values
		}
		out.Metrics = append(out.Metrics, point)
	}
	return out, nil
}

func mapFromNode(n *yaml.Node) (*models.Map, error) {
	v, err := valueFromNode(n, 0)
	if err != nil {
		return nil, err
	}
	m, ok := v.Map()
	if !ok {
		return nil, fmt.Errorf("%w: expected a mapping, got %s", models.ErrInvalidValue, v.Kind())
	}
	return m, nil
}

// valueFromNode converts a YAML node into a Value. Mapping order is kept.
func valueFromNode(n *yaml.Node, depth int) (models.Value, error) {
	if depth > models.MaxDepth {
		return models.Value{}, fmt.Errorf("%w: nesting deeper than %d", models.ErrInvalidValue, models.MaxDepth)
	}

	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return models.Value{}, fmt.Errorf("%w: empty document", models.ErrInvalidValue)
		}
		return valueFromNode(n.Content[0], depth)
	case yaml.AliasNode:
		return valueFromNode(n.Alias, depth+1)
	case yaml.MappingNode:
		m := models.NewMap()
		for i := 0; i+1 < len(n.Content); i += 2 {
			key, val := n.Content[i], n.Content[i+1]
			if key.Kind != yaml.ScalarNode || key.ShortTag() != "!!str" {
				return models.Value{}, fmt.Errorf("%w: line %d: mapping key %q must be a string", models.ErrInvalidValue, key.Line, key.Value)
			}
			v, err := valueFromNode(val, depth+1)
			if err != nil {
				return models.Value{}, err
			}
			m.Set(key.Value, v)
		}
		return models.MapOf(m), nil
	case yaml.ScalarNode:
		return scalarFromNode(n)
	}
	return models.Value{}, fmt.Errorf("%w: line %d: sequences are not supported", models.ErrInvalidValue, n.Line)
}

func scalarFromNode(n *yaml.Node) (models.Value, error) {
	switch n.ShortTag() {
	case "!!str":
		return models.String(n.Value), nil
	case "!!int":
		var i int64
		if err := n.Decode(&i); err != nil {
			return models.Value{}, fmt.Errorf("%w: line %d: %v", models.ErrInvalidValue, n.Line, err)
		}
		return models.Int(i), nil
	case "!!float":
		var f float64
		if err := n.Decode(&f); err != nil {
			return models.Value{}, fmt.Errorf("%w: line %d: %v", models.ErrInvalidValue, n.Line, err)
		}
		return models.Float(f), nil
	case "!!timestamp":
		return models.String(n.Value), nil
	}
	return models.Value{}, fmt.Errorf("%w: line %d: unsupported scalar %s (%s)", models.ErrInvalidValue, n.Line, strconv.Quote(n.Value), n.ShortTag())
}
