package cmp_test

import (
	"testing"

	"github.com/opst/karfab/pkg/cmp"
)

func TestSliceContentEq(t *testing.T) {
	for name, testcase := range map[string]struct {
		a, b     []string
		expected bool
	}{
		"empty slices are equal": {a: []string{}, b: nil, expected: true},
		"same order":             {a: []string{"a", "b"}, b: []string{"a", "b"}, expected: true},
		"different order":        {a: []string{"a", "b"}, b: []string{"b", "a"}, expected: true},
		"different counts":       {a: []string{"a", "a"}, b: []string{"a", "b"}, expected: false},
		"different length":       {a: []string{"a"}, b: []string{"a", "a"}, expected: false},
	} {
		t.Run(name, func(t *testing.T) {
			if actual := cmp.SliceContentEq(testcase.a, testcase.b); actual != testcase.expected {
				t.Errorf("(actual, expected) = (%v, %v)", actual, testcase.expected)
			}
		})
	}
}

func TestSliceEq(t *testing.T) {
	if !cmp.SliceEq([]int{1, 2}, []int{1, 2}) {
		t.Error("same slices are not equal")
	}
	if cmp.SliceEq([]int{1, 2}, []int{2, 1}) {
		t.Error("ordering is ignored")
	}
}

func TestMapEq(t *testing.T) {
	if !cmp.MapEq(map[string]int{"a": 1}, map[string]int{"a": 1}) {
		t.Error("same maps are not equal")
	}
	if cmp.MapEq(map[string]int{"a": 1}, map[string]int{"a": 2}) {
		t.Error("different maps are equal")
	}
	if cmp.MapEq(map[string]int{"a": 1}, map[string]int{"b": 1}) {
		t.Error("different keys are equal")
	}
}
