package identity

import "testing"

func TestValidEmail(t *testing.T) {
	ok := []string{"alice@x.com", "a.b+tag@mail.example.org"}
	bad := []string{"", "alice", "alice@", "@x.com", "alice@x", "Alice <alice@x.com>", "alice@.com", "a b@x.com"}

	for _, s := range ok {
		if !ValidEmail(s) {
			t.Fatalf("expected valid: %q", s)
		}
	}
	for _, s := range bad {
		if ValidEmail(s) {
			t.Fatalf("expected invalid: %q", s)
		}
	}
}

func TestNormalize(t *testing.T) {
	if NormalizeEmail("  Alice@X.COM ") != "alice@x.com" {
		t.Fatalf("email normalization failed")
	}
	if NormalizeName("  Alice   Smith ") != "Alice Smith" {
		t.Fatalf("name normalization failed")
	}
}
