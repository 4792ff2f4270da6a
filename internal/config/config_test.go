package config

import "testing"

func TestDeriveWSURL(t *testing.T) {
	cases := []struct {
		base string
		want string
	}{
		{"http://localhost:8000", "ws://localhost:8000/ws"},
		{"http://backend.example:9090", "ws://backend.example:8000/ws"},
		{"https://backend.example", "wss://backend.example:8000/ws"},
	}
	for _, tc := range cases {
		got, err := deriveWSURL(tc.base)
		if err != nil {
			t.Fatalf("deriveWSURL(%q): %v", tc.base, err)
		}
		if got != tc.want {
			t.Fatalf("deriveWSURL(%q) = %q, want %q", tc.base, got, tc.want)
		}
	}
}
