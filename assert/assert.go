// Package assert holds the small set of test assertions used across the module.
package assert

import (
	"cmp"
	"reflect"
	"strings"
	"testing"
)

func Equal(t testing.TB, expected, actual any, msg string) {
	t.Helper()
	if !reflect.DeepEqual(expected, actual) {
		t.Errorf("%s: expected %#v, got %#v", msg, expected, actual)
	}
}

func NotEqual(t testing.TB, unexpected, actual any, msg string) {
	t.Helper()
	if reflect.DeepEqual(unexpected, actual) {
		t.Errorf("%s: did not expect %#v", msg, actual)
	}
}

func True(t testing.TB, cond bool, msg string) {
	t.Helper()
	if !cond {
		t.Errorf("%s: expected true", msg)
	}
}

func False(t testing.TB, cond bool, msg string) {
	t.Helper()
	if cond {
		t.Errorf("%s: expected false", msg)
	}
}

// isNil reports whether v is nil, including typed nils in interfaces.
func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Chan, reflect.Func, reflect.Interface, reflect.Map, reflect.Pointer, reflect.Slice:
		return rv.IsNil()
	}
	return false
}

func Nil(t testing.TB, v any, msg string) {
	t.Helper()
	if !isNil(v) {
		t.Errorf("%s: expected nil, got %#v", msg, v)
	}
}

func NotNil(t testing.TB, v any, msg string) {
	t.Helper()
	if isNil(v) {
		t.Errorf("%s: expected non-nil", msg)
	}
}

func NoError(t testing.TB, err error, msg string) {
	t.Helper()
	if err != nil {
		t.Errorf("%s: unexpected error: %v", msg, err)
	}
}

func Error(t testing.TB, err error, msg string) {
	t.Helper()
	if err == nil {
		t.Errorf("%s: expected an error", msg)
	}
}

// Len checks the length of a slice, map, string, array or channel.
func Len(t testing.TB, expected int, collection any, msg string) {
	t.Helper()
	rv := reflect.ValueOf(collection)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.String, reflect.Array, reflect.Chan:
		if rv.Len() != expected {
			t.Errorf("%s: expected length %d, got %d", msg, expected, rv.Len())
		}
	default:
		if collection == nil && expected == 0 {
			return
		}
		t.Errorf("%s: cannot take length of %T", msg, collection)
	}
}

func Contains(t testing.TB, s, substr string, msg string) {
	t.Helper()
	if !strings.Contains(s, substr) {
		t.Errorf("%s: %q does not contain %q", msg, s, substr)
	}
}

func Greater[T cmp.Ordered](t testing.TB, a, b T, msg string) {
	t.Helper()
	if !(a > b) {
		t.Errorf("%s: expected %v > %v", msg, a, b)
	}
}

func GreaterOrEqual[T cmp.Ordered](t testing.TB, a, b T, msg string) {
	t.Helper()
	if !(a >= b) {
		t.Errorf("%s: expected %v >= %v", msg, a, b)
	}
}

func Less[T cmp.Ordered](t testing.TB, a, b T, msg string) {
	t.Helper()
	if !(a < b) {
		t.Errorf("%s: expected %v < %v", msg, a, b)
	}
}

func LessOrEqual[T cmp.Ordered](t testing.TB, a, b T, msg string) {
	t.Helper()
	if !(a <= b) {
		t.Errorf("%s: expected %v <= %v", msg, a, b)
	}
}
