package pattern

import "testing"

func TestMatchExact(t *testing.T) {
	ok, err := Match("user:123", "user:123")
	if err != nil || !ok {
		t.Fatalf("got %v, %v; want true, nil", ok, err)
	}
	ok, _ = Match("user:123", "user:124")
	if ok {
		t.Fatalf("expected exact pattern not to match a different key")
	}
}

func TestMatchPrefix(t *testing.T) {
	ok, err := Match("users:*", "users:42")
	if err != nil || !ok {
		t.Fatalf("got %v, %v; want true, nil", ok, err)
	}
	ok, _ = Match("users:*", "sessions:42")
	if ok {
		t.Fatalf("expected prefix pattern not to match an unrelated key")
	}
}

func TestMatchWildcardAll(t *testing.T) {
	ok, err := Match("*", "anything")
	if err != nil || !ok {
		t.Fatalf("expected * to match everything")
	}
}

func TestMatchSingleCharWildcard(t *testing.T) {
	ok, err := Match("user:?", "user:1")
	if err != nil || !ok {
		t.Fatalf("got %v, %v; want true, nil", ok, err)
	}
	ok, _ = Match("user:?", "user:12")
	if ok {
		t.Fatalf("expected ? to match exactly one rune")
	}
}

func TestMatchEmptyPatternErrors(t *testing.T) {
	if _, err := Match("", "key"); err == nil {
		t.Fatalf("expected empty pattern to error")
	}
}

func TestMatchEscapesRegexMetacharacters(t *testing.T) {
	ok, err := Match("price.usd", "price.usd")
	if err != nil || !ok {
		t.Fatalf("got %v, %v; want true, nil", ok, err)
	}
	ok, _ = Match("price.usd", "priceXusd")
	if ok {
		t.Fatalf("expected literal dot not to behave as a regex wildcard")
	}
}

func TestFilterPreservesOrder(t *testing.T) {
	keys := []string{"b:1", "a:1", "b:2", "c:1"}
	got, err := Filter("b:*", keys)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"b:1", "b:2"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestToSQLLikeEscapesMetacharacters(t *testing.T) {
	got := ToSQLLike("100%_off*")
	want := `100\%\_off%`
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestToSQLLikeTranslatesSingleCharWildcard(t *testing.T) {
	got := ToSQLLike("user:?")
	want := "user:_"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestIsLiteral(t *testing.T) {
	if !IsLiteral("user:123") {
		t.Fatalf("expected a plain key to be literal")
	}
	if IsLiteral("user:*") {
		t.Fatalf("expected a glob pattern not to be literal")
	}
}
