// Package optional provides an explicit present/absent value, used wherever
// a regional figure may be missing after a join. Missing values never take
// part in arithmetic: callers check OK before using the value.
package optional

import (
	"strconv"

	"github.com/goccy/go-json"
)

type Value[T any] struct {
	v  T
	ok bool
}

func Some[T any](v T) Value[T] {
	return Value[T]{v: v, ok: true}
}

func None[T any]() Value[T] {
	return Value[T]{}
}

func (o Value[T]) Get() (T, bool) {
	return o.v, o.ok
}

func (o Value[T]) OK() bool {
	return o.ok
}

// Or returns the value if present, otherwise fallback.
func (o Value[T]) Or(fallback T) T {
	if o.ok {
		return o.v
	}
	return fallback
}

func (o Value[T]) MarshalJSON() ([]byte, error) {
	if !o.ok {
		return []byte("null"), nil
	}
	return json.Marshal(o.v)
}

func (o *Value[T]) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*o = Value[T]{}
		return nil
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*o = Some(v)
	return nil
}

type Int = Value[int64]
type Float = Value[float64]

// Map applies f to a present value.
func Map[T, U any](o Value[T], f func(T) U) Value[U] {
	if v, ok := o.Get(); ok {
		return Some(f(v))
	}
	return None[U]()
}

// Float64 converts a present integer to a float.
func Float64(o Int) Float {
	return Map(o, func(v int64) float64 { return float64(v) })
}

// FormatInt renders an integer for CSV output, empty when absent.
func FormatInt(o Int) string {
	if v, ok := o.Get(); ok {
		return strconv.FormatInt(v, 10)
	}
	return ""
}

// FormatFloat renders a float for CSV output, empty when absent.
func FormatFloat(o Float, prec int) string {
	if v, ok := o.Get(); ok {
		return strconv.FormatFloat(v, 'f', prec, 64)
	}
	return ""
}
