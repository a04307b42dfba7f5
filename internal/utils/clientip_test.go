package utils

import (
	"net/http/httptest"
	"testing"
)

func TestParseProxyList(t *testing.T) {
	list, invalid := ParseProxyList([]string{"127.0.0.1", " 10.0.0.0/8 ", "", "not-an-ip", "::1", "300.1.1.1/8"})

	if len(list) != 3 {
		t.Errorf("len(list) = %d, want 3", len(list))
	}
	if len(invalid) != 2 {
		t.Errorf("invalid = %v, want 2 entries", invalid)
	}

	tests := []struct {
		ip   string
		want bool
	}{
		{"127.0.0.1", true},
		{"10.20.30.40", true},
		{"::1", true},
		{"::ffff:10.1.1.1", true},
		{"192.168.1.1", false},
		{"garbage", false},
	}
	for _, tt := range tests {
		if got := list.Contains(tt.ip); got != tt.want {
			t.Errorf("Contains(%q) = %v, want %v", tt.ip, got, tt.want)
		}
	}
}

func TestExtractIP(t *testing.T) {
	tests := map[string]string{
		"192.168.1.1:8080": "192.168.1.1",
		"192.168.1.1":      "192.168.1.1",
		"[::1]:8080":       "::1",
		"[::1]":            "::1",
		"2001:db8::1":      "2001:db8::1",
	}
	for in, want := range tests {
		if got := ExtractIP(in); got != want {
			t.Errorf("ExtractIP(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestClientIP(t *testing.T) {
	trusted, _ := ParseProxyList([]string{"10.0.0.0/8"})

	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{"direct connection", "203.0.113.5:1234", nil, "203.0.113.5"},
		{"untrusted peer forwarding", "203.0.113.5:1234", map[string]string{"X-Forwarded-For": "1.2.3.4"}, "203.0.113.5"},
		{"trusted proxy xff", "10.0.0.2:1234", map[string]string{"X-Forwarded-For": "1.2.3.4, 10.0.0.9"}, "1.2.3.4"},
		{"trusted proxy real ip", "10.0.0.2:1234", map[string]string{"X-Real-IP": "5.6.7.8"}, "5.6.7.8"},
		{"trusted proxy no headers", "10.0.0.2:1234", nil, "10.0.0.2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			if got := ClientIP(r, trusted); got != tt.want {
				t.Errorf("ClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}
