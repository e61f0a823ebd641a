package env

import "testing"

func TestGetTrimsAndFallsBack(t *testing.T) {
	t.Setenv("STOREFRONT_ENV_TEST", "  console ")
	if got := Get("STOREFRONT_ENV_TEST", "json"); got != "console" {
		t.Fatalf("expected trimmed value, got %q", got)
	}
	t.Setenv("STOREFRONT_ENV_TEST", "   ")
	if got := Get("STOREFRONT_ENV_TEST", "json"); got != "json" {
		t.Fatalf("blank value should fall back, got %q", got)
	}
}

func TestFirstPrefersEarlierKeys(t *testing.T) {
	t.Setenv("STOREFRONT_ENV_A", "")
	t.Setenv("STOREFRONT_ENV_B", "web.2")
	t.Setenv("STOREFRONT_ENV_C", "worker-7")
	got, ok := First("STOREFRONT_ENV_A", "STOREFRONT_ENV_B", "STOREFRONT_ENV_C")
	if !ok || got != "web.2" {
		t.Fatalf("expected web.2, got %q %v", got, ok)
	}
	if _, ok := First("STOREFRONT_ENV_UNSET"); ok {
		t.Fatalf("unset key should not match")
	}
}
