package csi

import "testing"

func TestReg2Bin(t *testing.T) {
	cases := []struct {
		beg, end int64
		want     int
	}{
		{0, 1, 4681},
		{0, 1 << 29, 0},
		{0, 0, 0}, // empty region
		{5, 5, 0}, // empty region
	}
	for _, c := range cases {
		if got := DefaultBinner.Reg2Bin(c.beg, c.end); got != c.want {
			t.Errorf("Reg2Bin(%d, %d) = %d, want %d", c.beg, c.end, got, c.want)
		}
	}
}

func TestReg2Bins(t *testing.T) {
	got := DefaultBinner.Reg2Bins(0, 1<<14)
	want := []int{0, 1, 9, 73, 585, 4681}
	if len(got) != len(want) {
		t.Fatalf("Reg2Bins(0, 1<<14) = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Reg2Bins(0, 1<<14) = %v, want %v", got, want)
		}
	}

	empty := DefaultBinner.Reg2Bins(5, 5)
	if len(empty) != 1 || empty[0] != 0 {
		t.Fatalf("Reg2Bins(5, 5) = %v, want [0]", empty)
	}
}

func TestReg2BinMembership(t *testing.T) {
	// reg2bin(b, e) must always appear in reg2bins(b, e).
	regions := [][2]int64{{0, 1}, {0, 1 << 14}, {100, 200000}, {62914561, 68157440}}
	for _, r := range regions {
		bin := DefaultBinner.Reg2Bin(r[0], r[1])
		bins := DefaultBinner.Reg2Bins(r[0], r[1])
		found := false
		for _, b := range bins {
			if b == bin {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("Reg2Bin(%d, %d) = %d not found in Reg2Bins = %v", r[0], r[1], bin, bins)
		}
	}
}

func TestBinLimit(t *testing.T) {
	if got := DefaultBinner.BinLimit(); got != 37449 {
		t.Errorf("BinLimit() = %d, want 37449", got)
	}
}
