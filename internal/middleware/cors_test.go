package middleware

import "testing"

func TestNormalizeHost(t *testing.T) {
	cases := map[string]string{
		"example.com":              "example.com",
		"https://example.com":      "example.com",
		"http://example.com":       "example.com",
		"https://www.example.com/": "example.com",
		"www.example.com":          "example.com",
		"https://example.com:3000": "example.com",
		"example.com/":             "example.com",
	}
	for in, want := range cases {
		if got := NormalizeHost(in); got != want {
			t.Fatalf("NormalizeHost(%q) = %q, want %q", in, got, want)
		}
	}
}
