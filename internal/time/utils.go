package timeutils

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/imishinist/fitlog/internal/models"
)

const (
	runIDPrefix = "log_"
	runIDLayout = "20060102_150405"
)

// FormatRunID names a run after its start time, suffixed with "_n" for the
// n-th collision (n > 0).
func FormatRunID(t time.Time, n int) string {
	id := runIDPrefix + t.Format(runIDLayout)
	if n > 0 {
		id += "_" + strconv.Itoa(n)
	}
	return id
}

// ParseRunID reverses FormatRunID. The time is interpreted in loc.
func ParseRunID(id string, loc *time.Location) (time.Time, int, error) {
	rest, ok := strings.CutPrefix(id, runIDPrefix)
	if !ok || len(rest) < len(runIDLayout) {
		return time.Time{}, 0, fmt.Errorf("invalid run id: %s", id)
	}
	t, err := time.ParseInLocation(runIDLayout, rest[:len(runIDLayout)], loc)
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("invalid run id %s: %w", id, err)
	}
	suffix := rest[len(runIDLayout):]
	if suffix == "" {
		return t, 0, nil
	}
	n, err := strconv.Atoi(strings.TrimPrefix(suffix, "_"))
	if err != nil || !strings.HasPrefix(suffix, "_") || n <= 0 {
		return time.Time{}, 0, fmt.Errorf("invalid run id suffix: %s", id)
	}
	return t, n, nil
}

// AlignTimestamp aligns timestamp to the specified resolution and alignment
func AlignTimestamp(t time.Time, resolution string, alignment string) (time.Time, error) {
	var duration time.Duration

	switch resolution {
	case "1m":
		duration = time.Minute
	case "5m":
		duration = 5 * time.Minute
	case "1h":
		duration = time.Hour
	default:
		return t, fmt.Errorf("unsupported resolution: %s", resolution)
	}

	aligned := t.Truncate(duration)

	switch alignment {
	case "floor":
		return aligned, nil
	case "ceil":
		if t.After(aligned) {
			return aligned.Add(duration), nil
		}
		return aligned, nil
	case "round":
		half := duration / 2
		if t.Sub(aligned) >= half {
			return aligned.Add(duration), nil
		}
		return aligned, nil
	default:
		return t, fmt.Errorf("unsupported alignment: %s", alignment)
	}
}

// ProcessMetrics resolves the step and timestamp of every point of a bulk
// metrics file. Points keep their file order.
func ProcessMetrics(points []models.MetricPoint, config models.TimeConfig, baseTime *time.Time) ([]models.Metric, error) {
	var result []models.Metric
	var base time.Time

	if baseTime != nil {
		base = *baseTime
	} else if len(points) > 0 && points[0].Timestamp != nil {
		base = *points[0].Timestamp
	} else {
		base = time.Now()
	}
	if aligned, err := AlignTimestamp(base, config.Resolution, config.Alignment); err == nil {
		base = aligned
	} else {
		return nil, err
	}

	for i, point := range points {
		if point.Values.Len() == 0 {
			return nil, fmt.Errorf("metric point %d has no values", i)
		}

		var timestamp time.Time
		var step int64

		if point.Timestamp != nil {
			var err error
			timestamp, err = AlignTimestamp(*point.Timestamp, config.Resolution, config.Alignment)
			if err != nil {
				return nil, err
			}
		} else {
			timestamp = time.Now()
		}

		if point.Step != nil {
			step = *point.Step
		} else {
			switch config.StepMode {
			case "timestamp":
				if point.Timestamp == nil {
					return nil, fmt.Errorf("metric point %d has no timestamp to derive a step from", i)
				}
				step = int64(timestamp.Sub(base).Minutes())
			case "sequence":
				step = int64(i)
			case "auto":
				if point.Timestamp != nil {
					step = int64(timestamp.Sub(base).Minutes())
				} else {
					step = int64(i)
				}
			default:
				return nil, fmt.Errorf("unsupported step mode: %s", config.StepMode)
			}
		}

		result = append(result, models.Metric{
			Values:    point.Values,
			Timestamp: timestamp,
			Step:      step,
			Epoch:     point.Epoch,
		})
	}

	return result, nil
}
