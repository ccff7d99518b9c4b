package identity

import "testing"

func TestBuildMerchantToken(t *testing.T) {
	cases := []struct {
		name                      string
		group, site, store, menu int64
		want                      string
	}{
		{"store level", 1, 2, 100, 0, "001" + "0002" + "000100" + "0000000"},
		{"with menu", 12, 345, 6, 7, "012" + "0345" + "000006" + "0000007"},
		{"all zero", 0, 0, 0, 0, "00000000000000000000"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := BuildMerchantToken(c.group, c.site, c.store, c.menu)
			if err != nil {
				t.Fatalf("BuildMerchantToken: %v", err)
			}
			if len(got) != 20 {
				t.Fatalf("token length = %d, want 20 (%q)", len(got), got)
			}
			if got != c.want {
				t.Errorf("BuildMerchantToken(%d,%d,%d,%d) = %q, want %q", c.group, c.site, c.store, c.menu, got, c.want)
			}
		})
	}
}

func TestBuildMerchantToken_Deterministic(t *testing.T) {
	a, err := BuildMerchantToken(1, 2, 3, 4)
	if err != nil {
		t.Fatalf("BuildMerchantToken: %v", err)
	}
	b, err := BuildMerchantToken(1, 2, 3, 4)
	if err != nil {
		t.Fatalf("BuildMerchantToken: %v", err)
	}
	if a != b {
		t.Errorf("expected deterministic output, got %q then %q", a, b)
	}
}

func TestBuildMerchantToken_RejectsOverflow(t *testing.T) {
	cases := []struct {
		name                      string
		group, site, store, menu int64
	}{
		{"group overflow", 1000, 0, 0, 0},
		{"site overflow", 0, 10000, 0, 0},
		{"store overflow", 0, 0, 1000000, 0},
		{"menu overflow", 0, 0, 0, 10000000},
		{"negative", -1, 0, 0, 0},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if _, err := BuildMerchantToken(c.group, c.site, c.store, c.menu); err == nil {
				t.Fatal("expected error for out-of-width input")
			}
		})
	}
}
