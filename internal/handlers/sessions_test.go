package handlers

import (
	"reflect"
	"testing"
)

func TestUniqueAttendees(t *testing.T) {
	cases := []struct {
		name string
		in   []int
		want []int
	}{
		{"повторы схлопываются", []int{3, 1, 3, 2, 1}, []int{3, 1, 2}},
		{"без повторов как есть", []int{1, 2, 3}, []int{1, 2, 3}},
		{"пустой список", []int{}, []int{}},
		{"один участник много раз", []int{5, 5, 5}, []int{5}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := uniqueAttendees(tc.in); !reflect.DeepEqual(got, tc.want) {
				t.Errorf("want %v, got %v", tc.want, got)
			}
		})
	}
}
