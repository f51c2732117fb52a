package ssrf

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNormalizeHostname(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"example.com", "example.com"},
		{"  EXAMPLE.COM.  ", "example.com"},
		{"[::1]", "::1"},
		{"[fe80::1]", "fe80::1"},
	}

	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			if result := normalizeHostname(tc.input); result != tc.expected {
				t.Errorf("normalizeHostname(%q) = %q, expected %q", tc.input, result, tc.expected)
			}
		})
	}
}

func TestIsPrivateIPAddress(t *testing.T) {
	tests := []struct {
		address  string
		expected bool
	}{
		{"127.0.0.1", true},
		{"10.1.2.3", true},
		{"172.16.0.1", true},
		{"172.32.0.1", false},
		{"192.168.1.1", true},
		{"169.254.169.254", true},
		{"100.64.0.1", true},
		{"0.0.0.0", true},
		{"::1", true},
		{"[::1]", true},
		{"fe80::1", true},
		{"fd00::1", true},
		{"::ffff:192.168.1.1", true},
		{"::ffff:8.8.8.8", false},
		{"8.8.8.8", false},
		{"2606:4700:4700::1111", false},
		{"example.com", false},
		{"", false},
	}

	for _, tc := range tests {
		t.Run(tc.address, func(t *testing.T) {
			if got := IsPrivateIPAddress(tc.address); got != tc.expected {
				t.Errorf("IsPrivateIPAddress(%q) = %v, expected %v", tc.address, got, tc.expected)
			}
		})
	}
}

func TestCheckHost(t *testing.T) {
	tests := []struct {
		host    string
		blocked bool
	}{
		{"example.com", false},
		{"images.example.org", false},
		{"localhost", true},
		{"LOCALHOST.", true},
		{"printer.local", true},
		{"metadata.google.internal", true},
		{"api.internal", true},
		{"127.0.0.1", true},
		{"[::1]", true},
		{"93.184.216.34", false},
		{"", true},
	}

	for _, tc := range tests {
		t.Run(tc.host, func(t *testing.T) {
			err := CheckHost(tc.host)
			if tc.blocked && !errors.Is(err, ErrBlocked) {
				t.Errorf("CheckHost(%q) = %v, expected ErrBlocked", tc.host, err)
			}
			if !tc.blocked && err != nil {
				t.Errorf("CheckHost(%q) unexpected error: %v", tc.host, err)
			}
		})
	}
}

func TestDialControl(t *testing.T) {
	if err := DialControl("tcp", "127.0.0.1:80", nil); !errors.Is(err, ErrBlocked) {
		t.Errorf("loopback dial = %v, expected ErrBlocked", err)
	}
	if err := DialControl("tcp", "8.8.8.8:443", nil); err != nil {
		t.Errorf("public dial = %v", err)
	}
	if err := DialControl("tcp", "no-port", nil); !errors.Is(err, ErrBlocked) {
		t.Errorf("malformed dial = %v, expected ErrBlocked", err)
	}
}

func TestTransportRefusesLoopback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := &http.Client{Transport: NewTransport()}
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL, nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := client.Do(req)
	if err == nil {
		resp.Body.Close()
		t.Fatal("expected loopback request to be refused")
	}
	if !errors.Is(err, ErrBlocked) {
		t.Errorf("err = %v, expected ErrBlocked", err)
	}
}

func TestBlockedError(t *testing.T) {
	err := blocked("10.0.0.1:80", "private address")
	var be *BlockedError
	if !errors.As(err, &be) || be.Host != "10.0.0.1:80" {
		t.Fatalf("errors.As failed for %v", err)
	}
	if err.Error() != "blocked destination 10.0.0.1:80: private address" {
		t.Errorf("Error() = %q", err.Error())
	}
}
