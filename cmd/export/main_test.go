package main

import "testing"

func TestCheckParallel(t *testing.T) {
	for _, n := range []int{0, -1, -8} {
		if err := checkParallel(n); err == nil {
			t.Fatalf("parallel %d should be rejected", n)
		}
	}
	for _, n := range []int{1, 4, 64} {
		if err := checkParallel(n); err != nil {
			t.Fatalf("parallel %d: %v", n, err)
		}
	}
}
