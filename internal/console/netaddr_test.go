package console

import (
	"net"
	"testing"
)

func TestScanURL(t *testing.T) {
	cases := []struct {
		host, bound, want string
	}{
		{"192.168.1.20", "[::]:8080", "http://192.168.1.20:8080"},
		{"192.168.1.20", "0.0.0.0:9090", "http://192.168.1.20:9090"},
		{"fe80::1", "[::]:8080", "http://[fe80::1]:8080"},
		{"127.0.0.1", "", "http://127.0.0.1:8080"},
	}
	for _, tc := range cases {
		if got := ScanURL(tc.host, tc.bound); got != tc.want {
			t.Fatalf("ScanURL(%q, %q) = %q, want %q", tc.host, tc.bound, got, tc.want)
		}
	}
}

func TestLocalIPParses(t *testing.T) {
	if net.ParseIP(LocalIP()) == nil {
		t.Fatalf("LocalIP returned %q", LocalIP())
	}
}
