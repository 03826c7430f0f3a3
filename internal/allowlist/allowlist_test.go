package allowlist

import "testing"

func TestAllowedEmptyPatternsAllowAll(t *testing.T) {
	if !Allowed("anything.example.com", nil) {
		t.Fatal("expected empty patterns to allow all")
	}
}

func TestAllowedLiteral(t *testing.T) {
	if !Allowed("Example.com", []string{"example.com"}) {
		t.Fatal("expected case-insensitive literal match")
	}
	if Allowed("notexample.com", []string{"example.com"}) {
		t.Fatal("expected literal mismatch to be denied")
	}
}

func TestAllowedLeadingWildcard(t *testing.T) {
	patterns := []string{"*.good.tld"}
	if !Allowed("api.good.tld", patterns) {
		t.Fatal("expected api.good.tld to match *.good.tld")
	}
	if !Allowed("good.tld", patterns) {
		t.Fatal("expected bare suffix good.tld to match *.good.tld")
	}
	if Allowed("evil.tld", patterns) {
		t.Fatal("expected evil.tld to be denied")
	}
	if Allowed("notgood.tld", patterns) {
		t.Fatal("expected notgood.tld (no label boundary) to be denied")
	}
}

func TestAllowedGenericSuffix(t *testing.T) {
	patterns := []string{"*good.tld"}
	if !Allowed("notgood.tld", patterns) {
		t.Fatal("expected notgood.tld to match *good.tld")
	}
}

func TestAllowedMonotone(t *testing.T) {
	base := []string{"example.com"}
	if Allowed("other.tld", base) {
		t.Fatal("unexpected match")
	}
	extended := append(append([]string{}, base...), "other.tld")
	if !Allowed("other.tld", extended) {
		t.Fatal("adding a matching pattern must not make a previously-false result stay false")
	}
	// Nothing that was already true can become false by adding patterns.
	if !Allowed("example.com", base) || !Allowed("example.com", extended) {
		t.Fatal("monotonicity violated: adding patterns flipped a true result to false")
	}
}
