package utils

import "testing"

func TestNormalizePage(t *testing.T) {
	cases := []struct {
		page, pageSize         int
		wantPage, wantPageSize int
	}{
		{0, 0, 1, 20},
		{-5, -1, 1, 20},
		{1, 100, 1, 100},
		{3, 101, 3, 20},
		{2, 50, 2, 50},
	}
	for _, tc := range cases {
		page, pageSize := NormalizePage(tc.page, tc.pageSize)
		if page != tc.wantPage || pageSize != tc.wantPageSize {
			t.Errorf("NormalizePage(%d, %d) = (%d, %d), want (%d, %d)",
				tc.page, tc.pageSize, page, pageSize, tc.wantPage, tc.wantPageSize)
		}
	}
}

func TestUniqueSlice(t *testing.T) {
	got := UniqueSlice([]int64{3, 1, 3, 2, 1})
	want := []int64{3, 1, 2}
	if len(got) != len(want) {
		t.Fatalf("UniqueSlice: got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("UniqueSlice order: got %v, want %v", got, want)
			break
		}
	}
}
