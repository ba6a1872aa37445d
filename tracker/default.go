package tracker

import (
	"context"
	"sync"

	"github.com/imishinist/fitlog/internal/models"
)

var (
	defaultOnce    sync.Once
	defaultTracker *Tracker
)

// Default returns the process-wide Tracker used by the package-level functions.
func Default() *Tracker {
	defaultOnce.Do(func() {
		defaultTracker = New(Options{})
	})
	return defaultTracker
}

func Commit(ctx context.Context, anchor, message string) (*models.Run, error) {
	return Default().Commit(ctx, anchor, message)
}

func SetLogDir(dir string) error {
	return Default().SetLogDir(dir)
}

func Finish() error {
	return Default().Finish()
}

func AddMetric(value any, step int64, opts ...RecordOption) error {
	return Default().AddMetric(value, step, opts...)
}

func AddLoss(value any, step int64, opts ...RecordOption) error {
	return Default().AddLoss(value, step, opts...)
}

func AddBestMetric(value any, opts ...RecordOption) error {
	return Default().AddBestMetric(value, opts...)
}

func AddHyper(value any, opts ...RecordOption) error {
	return Default().AddHyper(value, opts...)
}

func AddHyperInFile(path string) error {
	return Default().AddHyperInFile(path)
}

func AddOther(value any, opts ...RecordOption) error {
	return Default().AddOther(value, opts...)
}
