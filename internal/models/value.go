package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// MaxDepth bounds the nesting of a Value tree.
const MaxDepth = 32

type ValueKind int

const (
	InvalidValue ValueKind = iota
	IntValue
	FloatValue
	StringValue
	MapValue
)

func (k ValueKind) String() string {
	switch k {
	case IntValue:
		return "int"
	case FloatValue:
		return "float"
	case StringValue:
		return "string"
	case MapValue:
		return "map"
	default:
		return "invalid"
	}
}

// Value is either a scalar (int, float, string) or an ordered mapping of
// string keys to Values.
type Value struct {
	kind ValueKind
	i    int64
	f    float64
	s    string
	m    *Map
}

func Int(i int64) Value     { return Value{kind: IntValue, i: i} }
func Float(f float64) Value { return Value{kind: FloatValue, f: f} }
func String(s string) Value { return Value{kind: StringValue, s: s} }

func MapOf(m *Map) Value {
	if m == nil {
		m = NewMap()
	}
	return Value{kind: MapValue, m: m}
}

func (v Value) Kind() ValueKind { return v.kind }
func (v Value) IsValid() bool   { return v.kind != InvalidValue }

func (v Value) Int() (int64, bool) {
	return v.i, v.kind == IntValue
}

// Number returns the value as float64 for both int and float values.
func (v Value) Number() (float64, bool) {
	switch v.kind {
	case IntValue:
		return float64(v.i), true
	case FloatValue:
		return v.f, true
	}
	return 0, false
}

func (v Value) Str() (string, bool) {
	return v.s, v.kind == StringValue
}

func (v Value) Map() (*Map, bool) {
	return v.m, v.kind == MapValue
}

// String renders scalars the way they are shown in a summary table.
func (v Value) String() string {
	switch v.kind {
	case IntValue:
		return strconv.FormatInt(v.i, 10)
	case FloatValue:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case StringValue:
		return v.s
	case MapValue:
		b, err := json.Marshal(v.m)
		if err != nil {
			return "{...}"
		}
		return string(b)
	}
	return ""
}

// Interface converts the value into plain Go types. Mappings become
// map[string]any and lose their key order.
func (v Value) Interface() any {
	switch v.kind {
	case IntValue:
		return v.i
	case FloatValue:
		return v.f
	case StringValue:
		return v.s
	case MapValue:
		out := make(map[string]any, v.m.Len())
		for _, k := range v.m.keys {
			out[k] = v.m.vals[k].Interface()
		}
		return out
	}
	return nil
}

// Equal reports deep equality, including key order of mappings.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case IntValue:
		return v.i == o.i
	case FloatValue:
		return v.f == o.f || (math.IsNaN(v.f) && math.IsNaN(o.f))
	case StringValue:
		return v.s == o.s
	case MapValue:
		return v.m.Equal(o.m)
	}
	return true
}

// Map is an insertion-ordered mapping from string keys to Values.
type Map struct {
	keys []string
	vals map[string]Value
}

func NewMap() *Map {
	return &Map{vals: map[string]Value{}}
}

// Set binds key to v. An existing key keeps its position.
func (m *Map) Set(key string, v Value) {
	if m.vals == nil {
		m.vals = map[string]Value{}
	}
	if _, ok := m.vals[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.vals[key] = v
}

func (m *Map) Get(key string) (Value, bool) {
	if m == nil {
		return Value{}, false
	}
	v, ok := m.vals[key]
	return v, ok
}

func (m *Map) Has(key string) bool {
	_, ok := m.Get(key)
	return ok
}

func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

func (m *Map) Keys() []string {
	if m == nil {
		return nil
	}
	return append([]string(nil), m.keys...)
}

// Clone returns a deep copy.
func (m *Map) Clone() *Map {
	out := NewMap()
	if m == nil {
		return out
	}
	for _, k := range m.keys {
		v := m.vals[k]
		if v.kind == MapValue {
			v = MapOf(v.m.Clone())
		}
		out.Set(k, v)
	}
	return out
}

// Merge overwrites top-level keys of m with the ones in src.
func (m *Map) Merge(src *Map) {
	for _, k := range src.Keys() {
		v, _ := src.Get(k)
		m.Set(k, v)
	}
}

func (m *Map) Equal(o *Map) bool {
	if m.Len() != o.Len() {
		return false
	}
	for i, k := range m.Keys() {
		if o.keys[i] != k {
			return false
		}
		if !m.vals[k].Equal(o.vals[k]) {
			return false
		}
	}
	return true
}

// FlatEntry is a leaf of a Value tree addressed by its dotted key path.
type FlatEntry struct {
	Key   string
	Value Value
}

// Flatten lists the scalar leaves of m depth-first, joining nested keys with ".".
func (m *Map) Flatten() []FlatEntry {
	var out []FlatEntry
	m.flatten("", &out)
	return out
}

func (m *Map) flatten(prefix string, out *[]FlatEntry) {
	for _, k := range m.Keys() {
		v := m.vals[k]
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if sub, ok := v.Map(); ok {
			sub.flatten(key, out)
			continue
		}
		*out = append(*out, FlatEntry{Key: key, Value: v})
	}
}

// FromAny validates a Go value and converts it into a Value tree.
// Accepted inputs are integers, floats, strings, Value, *Map and maps with
// string keys whose elements are accepted inputs themselves. Keys of plain
// Go maps are sorted since their iteration order is unspecified.
func FromAny(x any) (Value, error) {
	return fromAny(reflect.ValueOf(x), 0, map[uintptr]bool{}, "")
}

var (
	valueType = reflect.TypeOf(Value{})
	mapType   = reflect.TypeOf(&Map{})
)

func fromAny(rv reflect.Value, depth int, path map[uintptr]bool, at string) (Value, error) {
	if depth > MaxDepth {
		return Value{}, fmt.Errorf("%w: nesting deeper than %d at %q", ErrInvalidValue, MaxDepth, at)
	}
	if !rv.IsValid() {
		return Value{}, fmt.Errorf("%w: nil value at %q", ErrInvalidValue, at)
	}

	switch rv.Type() {
	case valueType:
		v := rv.Interface().(Value)
		if err := validate(v, depth, path, at); err != nil {
			return Value{}, err
		}
		return v, nil
	case mapType:
		if rv.IsNil() {
			return Value{}, fmt.Errorf("%w: nil map at %q", ErrInvalidValue, at)
		}
		v := MapOf(rv.Interface().(*Map))
		if err := validate(v, depth, path, at); err != nil {
			return Value{}, err
		}
		return v, nil
	}

	switch rv.Kind() {
	case reflect.Interface, reflect.Pointer:
		if rv.IsNil() {
			return Value{}, fmt.Errorf("%w: nil value at %q", ErrInvalidValue, at)
		}
		return fromAny(rv.Elem(), depth, path, at)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Int(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return Value{}, fmt.Errorf("%w: integer %d overflows int64 at %q", ErrInvalidValue, u, at)
		}
		return Int(int64(u)), nil
	case reflect.Float32, reflect.Float64:
		return Float(rv.Float()), nil
	case reflect.String:
		return String(rv.String()), nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return Value{}, fmt.Errorf("%w: mapping key of type %s at %q, keys must be strings", ErrInvalidValue, rv.Type().Key(), at)
		}
		if rv.IsNil() {
			return MapOf(NewMap()), nil
		}
		ptr := rv.Pointer()
		if path[ptr] {
			return Value{}, fmt.Errorf("%w: cyclic mapping at %q", ErrInvalidValue, at)
		}
		path[ptr] = true
		defer delete(path, ptr)

		keys := make([]string, 0, rv.Len())
		for _, k := range rv.MapKeys() {
			keys = append(keys, k.String())
		}
		sort.Strings(keys)
		m := NewMap()
		for _, k := range keys {
			elem := rv.MapIndex(reflect.ValueOf(k).Convert(rv.Type().Key()))
			v, err := fromAny(elem, depth+1, path, joinPath(at, k))
			if err != nil {
				return Value{}, err
			}
			m.Set(k, v)
		}
		return MapOf(m), nil
	}
	return Value{}, fmt.Errorf("%w: unsupported type %s at %q", ErrInvalidValue, rv.Type(), at)
}

func validate(v Value, depth int, path map[uintptr]bool, at string) error {
	if depth > MaxDepth {
		return fmt.Errorf("%w: nesting deeper than %d at %q", ErrInvalidValue, MaxDepth, at)
	}
	switch v.kind {
	case IntValue, FloatValue, StringValue:
		return nil
	case MapValue:
		ptr := reflect.ValueOf(v.m).Pointer()
		if path[ptr] {
			return fmt.Errorf("%w: cyclic mapping at %q", ErrInvalidValue, at)
		}
		path[ptr] = true
		defer delete(path, ptr)
		for _, k := range v.m.keys {
			if err := validate(v.m.vals[k], depth+1, path, joinPath(at, k)); err != nil {
				return err
			}
		}
		return nil
	}
	return fmt.Errorf("%w: empty value at %q", ErrInvalidValue, at)
}

func joinPath(at, key string) string {
	if at == "" {
		return key
	}
	return at + "." + key
}

// ParseScalar types a raw string: integers first, then finite floats,
// anything else stays a string.
func ParseScalar(s string) Value {
	t := strings.TrimSpace(s)
	if i, err := strconv.ParseInt(t, 10, 64); err == nil {
		return Int(i)
	}
	if f, err := strconv.ParseFloat(t, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
		return Float(f)
	}
	return String(s)
}

// Non-finite floats have no JSON literal; they are written as a one-key
// object {"$float": "NaN"|"+Inf"|"-Inf"}. Mapping keys starting with "$" get
// one more "$" on the wire so that no user mapping reads back as a float.
const (
	floatTag      = "$float"
	nanLiteral    = "NaN"
	posInfLiteral = "+Inf"
	negInfLiteral = "-Inf"
)

func encodeKey(k string) string {
	if strings.HasPrefix(k, "$") {
		return "$" + k
	}
	return k
}

func decodeKey(k string) string {
	if strings.HasPrefix(k, "$$") {
		return k[1:]
	}
	return k
}

func nonFiniteJSON(f float64) ([]byte, error) {
	lit := nanLiteral
	switch {
	case math.IsInf(f, 1):
		lit = posInfLiteral
	case math.IsInf(f, -1):
		lit = negInfLiteral
	}
	return json.Marshal(map[string]string{floatTag: lit})
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case IntValue:
		return []byte(strconv.FormatInt(v.i, 10)), nil
	case FloatValue:
		if math.IsNaN(v.f) || math.IsInf(v.f, 0) {
			return nonFiniteJSON(v.f)
		}
		b := strconv.AppendFloat(nil, v.f, 'g', -1, 64)
		if !bytes.ContainsAny(b, ".eE") {
			b = append(b, ".0"...)
		}
		return b, nil
	case StringValue:
		return json.Marshal(v.s)
	case MapValue:
		return v.m.MarshalJSON()
	}
	return nil, fmt.Errorf("%w: cannot marshal empty value", ErrInvalidValue)
}

func (m *Map) MarshalJSON() ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range m.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(encodeKey(k))
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := m.vals[k].MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	parsed, err := decodeJSONValue(dec, 0)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

func (m *Map) UnmarshalJSON(data []byte) error {
	var v Value
	if err := v.UnmarshalJSON(data); err != nil {
		return err
	}
	parsed, ok := v.Map()
	if !ok {
		return fmt.Errorf("%w: expected a mapping, got %s", ErrInvalidValue, v.Kind())
	}
	*m = *parsed
	return nil
}

func decodeJSONValue(dec *json.Decoder, depth int) (Value, error) {
	if depth > MaxDepth {
		return Value{}, fmt.Errorf("%w: nesting deeper than %d", ErrInvalidValue, MaxDepth)
	}
	tok, err := dec.Token()
	if err != nil {
		return Value{}, err
	}
	switch t := tok.(type) {
	case json.Delim:
		if t != '{' {
			return Value{}, fmt.Errorf("%w: arrays are not supported", ErrInvalidValue)
		}
		m := NewMap()
		for first := true; dec.More(); first = false {
			kt, err := dec.Token()
			if err != nil {
				return Value{}, err
			}
			key, _ := kt.(string)
			if first && key == floatTag {
				return decodeNonFinite(dec)
			}
			v, err := decodeJSONValue(dec, depth+1)
			if err != nil {
				return Value{}, err
			}
			m.Set(decodeKey(key), v)
		}
		if _, err := dec.Token(); err != nil {
			return Value{}, err
		}
		return MapOf(m), nil
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return Int(i), nil
		}
		f, err := t.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("%w: number %s: %v", ErrInvalidValue, t, err)
		}
		return Float(f), nil
	case string:
		return String(t), nil
	}
	return Value{}, fmt.Errorf("%w: unsupported JSON token %v", ErrInvalidValue, tok)
}

// decodeNonFinite reads the rest of a {"$float": ...} object.
func decodeNonFinite(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, err
	}
	lit, _ := tok.(string)
	var v Value
	switch lit {
	case nanLiteral:
		v = Float(math.NaN())
	case posInfLiteral:
		v = Float(math.Inf(1))
	case negInfLiteral:
		v = Float(math.Inf(-1))
	default:
		return Value{}, fmt.Errorf("%w: bad %s literal %v", ErrInvalidValue, floatTag, tok)
	}
	if dec.More() {
		return Value{}, fmt.Errorf("%w: %s object with extra keys", ErrInvalidValue, floatTag)
	}
	if _, err := dec.Token(); err != nil {
		return Value{}, err
	}
	return v, nil
}

// MarshalYAML keeps mapping order by emitting a yaml.Node.
func (v Value) MarshalYAML() (any, error) {
	return v.yamlNode()
}

func (m *Map) MarshalYAML() (any, error) {
	return MapOf(m).yamlNode()
}

func (v Value) yamlNode() (*yaml.Node, error) {
	switch v.kind {
	case IntValue:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.FormatInt(v.i, 10)}, nil
	case FloatValue:
		s := strconv.FormatFloat(v.f, 'g', -1, 64)
		switch {
		case math.IsNaN(v.f):
			s = ".nan"
		case math.IsInf(v.f, 1):
			s = ".inf"
		case math.IsInf(v.f, -1):
			s = "-.inf"
		}
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!float", Value: s}, nil
	case StringValue:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v.s}, nil
	case MapValue:
		n := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		for _, k := range v.m.keys {
			child, err := v.m.vals[k].yamlNode()
			if err != nil {
				return nil, err
			}
			n.Content = append(n.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k}, child)
		}
		return n, nil
	}
	return nil, fmt.Errorf("%w: cannot marshal empty value", ErrInvalidValue)
}
