package units

import "testing"

func TestParseEther(t *testing.T) {
	got, err := ParseEther("0.1")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got.Dec() != "100000000000000000" {
		t.Fatalf("unexpected wei value %s", got.Dec())
	}
	if FormatEther(got) != "0.1" {
		t.Fatalf("unexpected format %s", FormatEther(got))
	}
}

func TestParseRejectsInvalid(t *testing.T) {
	for _, input := range []string{"", "-1", "abc", "0.0000000000000000001"} {
		if _, err := ParseEther(input); err == nil {
			t.Fatalf("expected %q to be rejected", input)
		}
	}
}

func TestParseBase(t *testing.T) {
	dec, err := ParseBase("1500")
	if err != nil {
		t.Fatalf("parse decimal: %v", err)
	}
	hex, err := ParseBase("0x5dc")
	if err != nil {
		t.Fatalf("parse hex: %v", err)
	}
	if !dec.Eq(hex) {
		t.Fatalf("expected equal values, got %s and %s", dec.Dec(), hex.Dec())
	}
	if Format(dec, 2) != "15" {
		t.Fatalf("unexpected format %s", Format(dec, 2))
	}
}
