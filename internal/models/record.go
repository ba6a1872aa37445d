package models

import (
	"fmt"
	"time"
)

// Kind identifies what a Record describes and how it is stored.
type Kind string

const (
	KindMetric     Kind = "metric"
	KindLoss       Kind = "loss"
	KindBestMetric Kind = "best_metric"
	KindHyper      Kind = "hyper"
	KindOther      Kind = "other"
)

// Kinds lists every record kind in storage order.
var Kinds = []Kind{KindMetric, KindLoss, KindBestMetric, KindHyper, KindOther}

func (k Kind) Valid() bool {
	switch k {
	case KindMetric, KindLoss, KindBestMetric, KindHyper, KindOther:
		return true
	}
	return false
}

// IsSeries reports whether records of this kind form an append-only time
// series. The other kinds are keyed summaries where the latest write wins.
func (k Kind) IsSeries() bool {
	return k == KindMetric || k == KindLoss
}

// Record is one normalized logging event.
type Record struct {
	Kind Kind
	// Value always maps names to values, see Normalize.
	Value *Map
	Step  *int64
	Epoch *int64
	// Time is stamped by the writer when zero.
	Time time.Time
}

// Normalize validates value and wraps it into a Record.
//
// With a name the stored value becomes the singleton mapping {name: value}.
// Without one the value must already be a mapping. Series kinds require a
// step; keyed kinds drop step and epoch.
func Normalize(kind Kind, value any, step *int64, name string, epoch *int64) (Record, error) {
	if !kind.Valid() {
		return Record{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if kind.IsSeries() && step == nil {
		return Record{}, fmt.Errorf("%w: %s record", ErrMissingStep, kind)
	}

	v, err := FromAny(value)
	if err != nil {
		return Record{}, err
	}

	var m *Map
	if name != "" {
		if sub, ok := v.Map(); ok {
			v = MapOf(sub.Clone())
		}
		m = NewMap()
		m.Set(name, v)
	} else {
		var ok bool
		m, ok = v.Map()
		if !ok {
			return Record{}, fmt.Errorf("%w: a %s value without a name must be a mapping, got %s", ErrInvalidValue, kind, v.Kind())
		}
		m = m.Clone()
	}

	rec := Record{Kind: kind, Value: m}
	if kind.IsSeries() {
		s := *step
		rec.Step = &s
		if epoch != nil {
			e := *epoch
			rec.Epoch = &e
		}
	}
	return rec, nil
}
