package schedule

import (
	"errors"
	"testing"
)

func TestResolveNormalizesCase(t *testing.T) {
	r, err := NewResolver("UTC")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	loc, err := r.Resolve("europe/stockholm")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if loc.String() != "Europe/Stockholm" {
		t.Fatalf("ожидали Europe/Stockholm, получили %s", loc)
	}
}

func TestResolveFallsBackToDefault(t *testing.T) {
	r, err := NewResolver("Europe/Stockholm")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	cases := []string{"", "Mars/Olympus_Mons", "   ", "Local", "local", " LOCAL "}
	for _, raw := range cases {
		loc, err := r.Resolve(raw)
		if !errors.Is(err, ErrInvalidTimezone) {
			t.Fatalf("ожидали ErrInvalidTimezone для %q, получили %v", raw, err)
		}
		if loc != r.Default() {
			t.Fatalf("ожидали пояс по умолчанию для %q, получили %s", raw, loc)
		}
	}
}

func TestNewResolverRejectsInvalidDefault(t *testing.T) {
	if _, err := NewResolver("Nowhere/Land"); err == nil {
		t.Fatalf("ожидали ошибку для некорректного пояса по умолчанию")
	}
}
