package cloud

import (
	"net/http"
	"strings"
	"testing"
)

func TestSign_Deterministic(t *testing.T) {
	a := Sign("client", "secret", "token", "1700000000000", "nonce", http.MethodGet, "/v1.0/devices/d1/status", nil)
	b := Sign("client", "secret", "token", "1700000000000", "nonce", http.MethodGet, "/v1.0/devices/d1/status", nil)
	if a != b {
		t.Fatalf("same inputs produced different signatures: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(a))
	}
	if a != strings.ToUpper(a) {
		t.Errorf("expected upper-case hex, got %s", a)
	}
}

func TestSign_SensitiveToEveryInput(t *testing.T) {
	base := Sign("client", "secret", "token", "1700000000000", "nonce", http.MethodGet, "/v1.0/token?grant_type=1", nil)
	variants := []string{
		Sign("client2", "secret", "token", "1700000000000", "nonce", http.MethodGet, "/v1.0/token?grant_type=1", nil),
		Sign("client", "secret2", "token", "1700000000000", "nonce", http.MethodGet, "/v1.0/token?grant_type=1", nil),
		Sign("client", "secret", "", "1700000000000", "nonce", http.MethodGet, "/v1.0/token?grant_type=1", nil),
		Sign("client", "secret", "token", "1700000000001", "nonce", http.MethodGet, "/v1.0/token?grant_type=1", nil),
		Sign("client", "secret", "token", "1700000000000", "nonce2", http.MethodGet, "/v1.0/token?grant_type=1", nil),
		Sign("client", "secret", "token", "1700000000000", "nonce", http.MethodPost, "/v1.0/token?grant_type=1", nil),
		Sign("client", "secret", "token", "1700000000000", "nonce", http.MethodGet, "/v1.0/token?grant_type=2", nil),
		Sign("client", "secret", "token", "1700000000000", "nonce", http.MethodGet, "/v1.0/token?grant_type=1", []byte(`{}`)),
	}
	for i, v := range variants {
		if v == base {
			t.Errorf("variant %d collided with the base signature", i)
		}
	}
}

func TestSign_QueryOrderInsensitive(t *testing.T) {
	a := Sign("client", "secret", "token", "t", "n", http.MethodGet, "/v1.0/devices?page=2&size=10", nil)
	b := Sign("client", "secret", "token", "t", "n", http.MethodGet, "/v1.0/devices?size=10&page=2", nil)
	if a != b {
		t.Fatal("expected query parameter order not to change the signature")
	}
}

func TestCanonicalPath(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"/v1.0/devices/d1/status", "/v1.0/devices/d1/status"},
		{"/v1.0/devices?size=10&page=2", "/v1.0/devices?page=2&size=10"},
		{"/v1.0/token?grant_type=1", "/v1.0/token?grant_type=1"},
	}
	for _, tc := range cases {
		if got := canonicalPath(tc.in); got != tc.want {
			t.Errorf("canonicalPath(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
