package util

import "testing"

func TestNormalizePhone(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in, want string
	}{
		{"09123456789", "+989123456789"},
		{"9123456789", "+989123456789"},
		{"00989123456789", "+989123456789"},
		{"98912 345 6789", "+989123456789"},
		{"+1 (415) 555-0100", "+14155550100"},
	}
	for _, c := range cases {
		if got := NormalizePhone(c.in); got != c.want {
			t.Errorf("NormalizePhone(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestFormatRecipient_RejectsGarbage(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"", "abc", "+", "123", "+0123456789"} {
		if got, err := FormatRecipient(in); err == nil {
			t.Errorf("FormatRecipient(%q) = %q, want error", in, got)
		}
	}

	got, err := FormatRecipient("0912 345 6789")
	if err != nil {
		t.Fatalf("FormatRecipient: %v", err)
	}
	if got != "+989123456789" {
		t.Fatalf("FormatRecipient = %q", got)
	}
}
