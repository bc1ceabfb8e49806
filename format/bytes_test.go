package format

import "testing"

func TestHumanBytes2(t *testing.T) {
	cases := []struct {
		in   uint64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KiB"},
		{512 * KibiByte, "512.0 KiB"},
		{3 * MebiByte / 2, "1.5 MiB"},
		{GibiByte, "1.0 GiB"},
	}

	for _, tt := range cases {
		if got := HumanBytes2(tt.in); got != tt.want {
			t.Errorf("HumanBytes2(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestHumanNumber(t *testing.T) {
	cases := []struct {
		in   uint64
		want string
	}{
		{999, "999"},
		{1000, "1K"},
		{1500, "1.5K"},
		{10_000_000, "10M"},
		{2_500_000_000, "2.5B"},
	}

	for _, tt := range cases {
		if got := HumanNumber(tt.in); got != tt.want {
			t.Errorf("HumanNumber(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
