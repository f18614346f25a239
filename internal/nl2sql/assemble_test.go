package nl2sql

import "testing"

func TestIsAlwaysTrue(t *testing.T) {
	for _, clause := range []string{"", "TRUE", "true", "1=1", " ( 1 = 1 ) ", "'1'='1'"} {
		if !IsAlwaysTrue(clause) {
			t.Fatalf("IsAlwaysTrue(%q) = false", clause)
		}
	}
	for _, clause := range []string{"asset = 'ETH'", "1=2", "FALSE"} {
		if IsAlwaysTrue(clause) {
			t.Fatalf("IsAlwaysTrue(%q) = true", clause)
		}
	}
}

func TestAssembleFullStatement(t *testing.T) {
	got := Assemble("transactions", Components{
		Filter:      Component{Clause: "wallet <> 'Treasury'"},
		Aggregation: Component{Clause: "SUM(shortTermGainLoss) AS total"},
		GroupBy:     Component{Clause: "asset, wallet"},
		OrderBy:     Component{Clause: "total DESC"},
		Limit:       Component{Clause: "10"},
	})
	want := "SELECT asset, wallet, SUM(shortTermGainLoss) AS total FROM transactions WHERE wallet <> 'Treasury' GROUP BY asset, wallet ORDER BY total DESC LIMIT 10"
	if got != want {
		t.Fatalf("Assemble() = %q", got)
	}
}

func TestAssembleKeepsGroupColumnsAlreadySelected(t *testing.T) {
	got := Assemble("transactions", Components{
		Aggregation: Component{Clause: "Asset, SUM(longTermGainLoss)"},
		GroupBy:     Component{Clause: "asset"},
	})
	if got != "SELECT Asset, SUM(longTermGainLoss) FROM transactions GROUP BY asset" {
		t.Fatalf("Assemble() = %q", got)
	}
}

func TestSplitTopLevelRespectsParensAndQuotes(t *testing.T) {
	got := splitTopLevel("COALESCE(a, 0), 'x,y', b")
	if len(got) != 3 || got[0] != "COALESCE(a, 0)" || got[1] != "'x,y'" || got[2] != "b" {
		t.Fatalf("splitTopLevel() = %#v", got)
	}
}

func TestNormalizeLimit(t *testing.T) {
	cases := map[string]string{"LIMIT 5": "5", "20": "20", "0": "", "-1": "", "ten": "", "": ""}
	for in, want := range cases {
		if got := normalizeLimit(in); got != want {
			t.Fatalf("normalizeLimit(%q) = %q, want %q", in, got, want)
		}
	}
}
