package market

import "testing"

func TestParseLLTV(t *testing.T) {
	cases := map[string]float64{
		"800000000000000000":  0.8,
		"860000000000000000":  0.86,
		"945000000000000000":  0.945,
		"1000000000000000000": 1,
		"0":                   0,
		"":                    0,
		"garbage":             0,
	}
	for in, want := range cases {
		if got := ParseLLTV(in); got != want {
			t.Fatalf("lltv %q: expected %v, got %v", in, want, got)
		}
	}
}

func TestMarketLTV(t *testing.T) {
	m := Market{LLTV: "800000000000000000"}
	if got := m.LTV(); got != 0.8 {
		t.Fatalf("expected 0.8, got %v", got)
	}
}

func TestFind(t *testing.T) {
	markets := []Market{{ID: "0xabc"}, {ID: "0xdef"}}
	got, ok := Find(markets, "0xDEF")
	if !ok || got.ID != "0xdef" {
		t.Fatalf("expected case-insensitive match, got %#v ok=%v", got, ok)
	}
	if _, ok := Find(markets, ""); ok {
		t.Fatalf("expected empty id to miss")
	}
	if _, ok := Find(markets, "0x123"); ok {
		t.Fatalf("expected unknown id to miss")
	}
}
