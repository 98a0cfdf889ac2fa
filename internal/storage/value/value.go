// Package value models the dynamic values the engine stores: null, bool,
// int, float, string, sequence, string-keyed mapping, plus the tombstone
// marker used to shadow deleted keys. Values are encoded as tagged JSON so
// every record on disk is self-describing and int/float round-trip exactly.
package value

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindSequence
	KindMapping
	KindTombstone
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindSequence:
		return "sequence"
	case KindMapping:
		return "mapping"
	case KindTombstone:
		return "tombstone"
	}
	return "invalid"
}

// Value is a closed tagged union. The zero Value is Null.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
	seq  []Value
	m    map[string]Value
}

func Null() Value           { return Value{kind: KindNull} }
func Bool(b bool) Value     { return Value{kind: KindBool, b: b} }
func Int(i int64) Value     { return Value{kind: KindInt, i: i} }
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }
func String(s string) Value { return Value{kind: KindString, s: s} }

func Sequence(vs ...Value) Value {
	return Value{kind: KindSequence, seq: vs}
}
func Mapping(m map[string]Value) Value {
	if m == nil {
		m = map[string]Value{}
	}
	return Value{kind: KindMapping, m: m}
}
func Tombstone() Value { return Value{kind: KindTombstone} }

func (v Value) Kind() Kind        { return v.kind }
func (v Value) IsTombstone() bool { return v.kind == KindTombstone }

func (v Value) AsBool() bool                { return v.b }
func (v Value) AsInt() int64                { return v.i }
func (v Value) AsFloat() float64            { return v.f }
func (v Value) AsString() string            { return v.s }
func (v Value) AsSequence() []Value         { return v.seq }
func (v Value) AsMapping() map[string]Value { return v.m }

// Equal reports deep equality, including kind. Int(1) is not Float(1).
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull, KindTombstone:
		return true
	case KindBool:
		return v.b == o.b
	case KindInt:
		return v.i == o.i
	case KindFloat:
		return v.f == o.f
	case KindString:
		return v.s == o.s
	case KindSequence:
		if len(v.seq) != len(o.seq) {
			return false
		}
		for i := range v.seq {
			if !v.seq[i].Equal(o.seq[i]) {
				return false
			}
		}
		return true
	case KindMapping:
		if len(v.m) != len(o.m) {
			return false
		}
		for k, vv := range v.m {
			ov, ok := o.m[k]
			if !ok || !vv.Equal(ov) {
				return false
			}
		}
		return true
	}
	return false
}

// wire is the tagged JSON shape: {"t":"int","v":42}. Null and tombstone
// carry no payload.
type wire struct {
	T string          `json:"t"`
	V json.RawMessage `json:"v,omitempty"`
}

const (
	tagNull      = "null"
	tagBool      = "bool"
	tagInt       = "int"
	tagFloat     = "float"
	tagString    = "str"
	tagSequence  = "seq"
	tagMapping   = "map"
	tagTombstone = "tomb"
)

func (v Value) MarshalJSON() ([]byte, error) {
	var w wire
	var err error
	switch v.kind {
	case KindNull:
		w.T = tagNull
	case KindTombstone:
		w.T = tagTombstone
	case KindBool:
		w.T = tagBool
		w.V, err = json.Marshal(v.b)
	case KindInt:
		w.T = tagInt
		w.V = json.RawMessage(strconv.FormatInt(v.i, 10))
	case KindFloat:
		w.T = tagFloat
		w.V, err = json.Marshal(v.f)
	case KindString:
		w.T = tagString
		w.V, err = json.Marshal(v.s)
	case KindSequence:
		w.T = tagSequence
		if v.seq == nil {
			w.V = json.RawMessage("[]")
		} else {
			w.V, err = json.Marshal(v.seq)
		}
	case KindMapping:
		w.T = tagMapping
		w.V, err = json.Marshal(v.m)
	default:
		return nil, fmt.Errorf("invalid value kind %d", v.kind)
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(w)
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var w wire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	switch w.T {
	case tagNull:
		*v = Null()
	case tagTombstone:
		*v = Tombstone()
	case tagBool:
		var b bool
		if err := json.Unmarshal(w.V, &b); err != nil {
			return err
		}
		*v = Bool(b)
	case tagInt:
		i, err := strconv.ParseInt(strings.TrimSpace(string(w.V)), 10, 64)
		if err != nil {
			return err
		}
		*v = Int(i)
	case tagFloat:
		var f float64
		if err := json.Unmarshal(w.V, &f); err != nil {
			return err
		}
		*v = Float(f)
	case tagString:
		var s string
		if err := json.Unmarshal(w.V, &s); err != nil {
			return err
		}
		*v = String(s)
	case tagSequence:
		var seq []Value
		if err := json.Unmarshal(w.V, &seq); err != nil {
			return err
		}
		*v = Value{kind: KindSequence, seq: seq}
	case tagMapping:
		var m map[string]Value
		if err := json.Unmarshal(w.V, &m); err != nil {
			return err
		}
		*v = Mapping(m)
	default:
		return fmt.Errorf("unknown value tag %q", w.T)
	}
	return nil
}

// FromJSON converts plain (untagged) JSON into a Value. Whole numbers become
// Int, everything else numeric becomes Float. Used by the CLI, never by the
// storage layer.
func FromJSON(data []byte) (Value, error) {
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return Value{}, err
	}
	return fromAny(raw)
}

func fromAny(raw any) (Value, error) {
	switch x := raw.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(x), nil
	case json.Number:
		if i, err := strconv.ParseInt(x.String(), 10, 64); err == nil {
			return Int(i), nil
		}
		f, err := x.Float64()
		if err != nil {
			return Value{}, err
		}
		return Float(f), nil
	case string:
		return String(x), nil
	case []any:
		seq := make([]Value, 0, len(x))
		for _, el := range x {
			v, err := fromAny(el)
			if err != nil {
				return Value{}, err
			}
			seq = append(seq, v)
		}
		return Value{kind: KindSequence, seq: seq}, nil
	case map[string]any:
		m := make(map[string]Value, len(x))
		for k, el := range x {
			v, err := fromAny(el)
			if err != nil {
				return Value{}, err
			}
			m[k] = v
		}
		return Mapping(m), nil
	}
	return Value{}, fmt.Errorf("unsupported JSON type %T", raw)
}

// String renders the value as plain JSON-ish text for display.
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindTombstone:
		return "<tombstone>"
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindString:
		return strconv.Quote(v.s)
	case KindSequence:
		parts := make([]string, len(v.seq))
		for i, el := range v.seq {
			parts[i] = el.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case KindMapping:
		keys := make([]string, 0, len(v.m))
		for k := range v.m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = strconv.Quote(k) + ": " + v.m[k].String()
		}
		return "{" + strings.Join(parts, ", ") + "}"
	}
	return "<invalid>"
}
