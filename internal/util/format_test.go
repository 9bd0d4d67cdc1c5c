package util

import "testing"

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		bytes    uint64
		expected string
	}{
		{512, "512 B"},
		{2048, "2.00 KiB"},
		{5 * MiB, "5.00 MiB"},
		{3 * GiB, "3.00 GiB"},
	}

	for _, tt := range tests {
		if got := FormatBytes(tt.bytes); got != tt.expected {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.bytes, got, tt.expected)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		seconds  float64
		expected string
	}{
		{0, "00:00:00"},
		{59.9, "00:00:59"},
		{61, "00:01:01"},
		{3661, "01:01:01"},
		{-5, "??:??:??"},
	}

	for _, tt := range tests {
		if got := FormatDuration(tt.seconds); got != tt.expected {
			t.Errorf("FormatDuration(%v) = %q, want %q", tt.seconds, got, tt.expected)
		}
	}
}

func TestParseFFmpegTime(t *testing.T) {
	tests := []struct {
		input    string
		expected float64
		ok       bool
	}{
		{"00:00:20.50", 20.5, true},
		{"01:02:03", 3723, true},
		{"garbage", 0, false},
		{"00:20", 0, false},
	}

	for _, tt := range tests {
		got, ok := ParseFFmpegTime(tt.input)
		if ok != tt.ok || got != tt.expected {
			t.Errorf("ParseFFmpegTime(%q) = (%v, %v), want (%v, %v)", tt.input, got, ok, tt.expected, tt.ok)
		}
	}
}

func TestFormatTimecode(t *testing.T) {
	tests := []struct {
		seconds  float64
		expected string
	}{
		{0, "00:00:00.000"},
		{20.5, "00:00:20.500"},
		{3723.25, "01:02:03.250"},
		{-1, "00:00:00.000"},
	}

	for _, tt := range tests {
		if got := FormatTimecode(tt.seconds); got != tt.expected {
			t.Errorf("FormatTimecode(%v) = %q, want %q", tt.seconds, got, tt.expected)
		}
	}
}

func TestCalculateSizeReduction(t *testing.T) {
	if got := CalculateSizeReduction(1000, 250); got != 75 {
		t.Errorf("CalculateSizeReduction(1000, 250) = %v, want 75", got)
	}
	if got := CalculateSizeReduction(0, 250); got != 0 {
		t.Errorf("CalculateSizeReduction(0, 250) = %v, want 0", got)
	}
}
