package money

import (
	"math/big"
	"testing"
)

func TestParse_ValidAmounts(t *testing.T) {
	tests := []struct {
		input    string
		expected int64
	}{
		{"1.00", 100},
		{"0.50", 50},
		{"10", 1000},
		{"0.01", 1},
		{"1250.75", 125075},
		{"", 0},
		{"100.999", 10099}, // extra precision truncated
	}

	for _, tt := range tests {
		result, ok := Parse(tt.input)
		if !ok {
			t.Errorf("Parse(%q) failed", tt.input)
			continue
		}
		if result.Int64() != tt.expected {
			t.Errorf("Parse(%q) = %s, want %d", tt.input, result.String(), tt.expected)
		}
	}
}

func TestParse_RejectsNegative(t *testing.T) {
	if _, ok := Parse("-5.00"); ok {
		t.Error("Parse should reject negative amounts")
	}
}

func TestParse_RejectsMalformed(t *testing.T) {
	for _, input := range []string{"1.2.3", "abc", "1,50"} {
		if _, ok := Parse(input); ok {
			t.Errorf("Parse(%q) should fail", input)
		}
	}
}

func TestParseSigned(t *testing.T) {
	result, ok := ParseSigned("-60.00")
	if !ok {
		t.Fatal("ParseSigned failed")
	}
	if result.Int64() != -6000 {
		t.Errorf("ParseSigned(-60.00) = %s, want -6000", result.String())
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		input    int64
		expected string
	}{
		{100, "1.00"},
		{50, "0.50"},
		{1, "0.01"},
		{125075, "1250.75"},
		{-6000, "-60.00"},
		{0, "0.00"},
	}

	for _, tt := range tests {
		if got := Format(big.NewInt(tt.input)); got != tt.expected {
			t.Errorf("Format(%d) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestFormat_Nil(t *testing.T) {
	if got := Format(nil); got != "0.00" {
		t.Errorf("Format(nil) = %q, want 0.00", got)
	}
}

func TestApplyBps(t *testing.T) {
	tests := []struct {
		amount   string
		bps      int64
		expected string
	}{
		// 100 FC * 0.2% * 3 is computed as MulQty then ApplyBps elsewhere;
		// here just the rate math
		{"300.00", 20, "0.60"},    // 0.2% repost commission
		{"40.00", 2000, "8.00"},   // 20% profit share
		{"100.00", 10000, "100.00"},
		{"0.01", 20, "0.00"},      // truncates toward zero
	}

	for _, tt := range tests {
		amt, _ := Parse(tt.amount)
		if got := Format(ApplyBps(amt, tt.bps)); got != tt.expected {
			t.Errorf("ApplyBps(%s, %d) = %s, want %s", tt.amount, tt.bps, got, tt.expected)
		}
	}
}

func TestMulQty(t *testing.T) {
	amt, _ := Parse("10.00")
	if got := Format(MulQty(amt, 2)); got != "20.00" {
		t.Errorf("MulQty = %s, want 20.00", got)
	}
}

func TestRoundTrip(t *testing.T) {
	for _, s := range []string{"0.00", "1.50", "999999.99"} {
		amt, ok := Parse(s)
		if !ok {
			t.Fatalf("Parse(%q) failed", s)
		}
		if got := Format(amt); got != s {
			t.Errorf("round trip %q -> %q", s, got)
		}
	}
}
