package phone

import "testing"

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"+55 (11) 99999-9999", "+5511999999999"},
		{"+5511999999999", "+5511999999999"},
		{"11 99999.9999", "11999999999"},
		{"  +1 212 555 0100 ", "+12125550100"},
	}
	for _, c := range cases {
		got, err := Normalize(c.in)
		if err != nil {
			t.Fatalf("Normalize(%q): %v", c.in, err)
		}
		if got != c.want {
			t.Fatalf("Normalize(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestNormalizeSameNumberDifferentFormatting(t *testing.T) {
	a, err := Normalize("+55 11 99999-9999")
	if err != nil {
		t.Fatal(err)
	}
	b, err := Normalize("+55(11)999999999")
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Fatalf("expected identical canonical forms, got %q and %q", a, b)
	}
}

func TestNormalizeRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "abc", "123", "+12 345 678 901 234 567", "99999x9999"} {
		if _, err := Normalize(in); err == nil {
			t.Fatalf("Normalize(%q): expected error", in)
		}
	}
}
