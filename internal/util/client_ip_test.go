package util

import (
	"net/http/httptest"
	"testing"
)

func TestClientIP(t *testing.T) {
	trusted, err := NewTrustedProxies([]string{"10.0.0.0/8", "192.168.1.10"})
	if err != nil {
		t.Fatalf("new trusted proxies: %v", err)
	}

	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		xrip       string
		trusted    *TrustedProxies
		want       string
	}{
		{
			name:       "untrusted peer ignores headers",
			remoteAddr: "102.218.20.4:5000",
			xff:        "41.63.0.9",
			xrip:       "41.63.0.10",
			want:       "102.218.20.4",
		},
		{
			name:       "trusted peer uses forwarded for",
			remoteAddr: "10.1.2.3:5000",
			xff:        "41.63.0.9",
			trusted:    trusted,
			want:       "41.63.0.9",
		},
		{
			name:       "rightmost untrusted hop wins",
			remoteAddr: "192.168.1.10:5000",
			xff:        "1.1.1.1, 41.63.0.9, 10.0.0.7",
			trusted:    trusted,
			want:       "41.63.0.9",
		},
		{
			name:       "real ip when forwarded for is garbage",
			remoteAddr: "10.1.2.3:5000",
			xff:        "unknown",
			xrip:       "41.63.0.11",
			trusted:    trusted,
			want:       "41.63.0.11",
		},
		{
			name:       "mapped ipv4 peer",
			remoteAddr: "[::ffff:10.1.2.3]:5000",
			xff:        "41.63.0.9",
			trusted:    trusted,
			want:       "41.63.0.9",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "http://loja.test", nil)
			req.RemoteAddr = tc.remoteAddr
			if tc.xff != "" {
				req.Header.Set("X-Forwarded-For", tc.xff)
			}
			if tc.xrip != "" {
				req.Header.Set("X-Real-IP", tc.xrip)
			}
			if got := ClientIP(req, tc.trusted); got != tc.want {
				t.Fatalf("client ip = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestNewTrustedProxies(t *testing.T) {
	if tp, err := NewTrustedProxies([]string{" ", ""}); err != nil || tp != nil {
		t.Fatalf("empty entries = %v, %v; want nil, nil", tp, err)
	}
	if _, err := NewTrustedProxies([]string{"10.0.0.0/33"}); err == nil {
		t.Fatalf("expected error for bad prefix")
	}
	if _, err := NewTrustedProxies([]string{"proxy.local"}); err == nil {
		t.Fatalf("expected error for hostname")
	}
}
