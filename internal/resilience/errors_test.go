package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
	"testing"
)

func TestStatusError_Message(t *testing.T) {
	e := &StatusError{Service: "deepseek", Code: 502, Body: "bad gateway"}
	if got := e.Error(); got != "deepseek: unexpected status 502: bad gateway" {
		t.Errorf("unexpected message %q", got)
	}
	e.Body = ""
	if got := e.Error(); got != "deepseek: unexpected status 502" {
		t.Errorf("unexpected message %q", got)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("invalid api key"), false},
		{"429", &StatusError{Code: 429}, true},
		{"503 wrapped", fmt.Errorf("call: %w", &StatusError{Code: 503}), true},
		{"400", &StatusError{Code: 400}, false},
		{"401", &StatusError{Code: 401}, false},
		{"conn reset", fmt.Errorf("read: %w", syscall.ECONNRESET), true},
		{"conn refused", fmt.Errorf("dial: %w", syscall.ECONNREFUSED), true},
		{"timeout", &net.DNSError{IsTimeout: true}, true},
		{"broken pipe text", errors.New("write: Broken Pipe"), true},
		{"canceled", context.Canceled, false},
		{"wrapped canceled", fmt.Errorf("call: %w", context.Canceled), false},
		{"op error reset", &net.OpError{Op: "read", Net: "tcp", Err: os.NewSyscallError("read", syscall.ECONNRESET)}, true},
		{"op error refused", &net.OpError{Op: "dial", Net: "tcp", Err: os.NewSyscallError("connect", syscall.ECONNREFUSED)}, true},
		{"bare errno reset", syscall.ECONNRESET, true},
		{"op error other errno", &net.OpError{Op: "dial", Net: "tcp", Err: os.NewSyscallError("connect", syscall.EACCES)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestRetryableStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		if !RetryableStatus(code) {
			t.Errorf("%d should be retryable", code)
		}
	}
	for _, code := range []int{200, 400, 401, 403, 404, 422} {
		if RetryableStatus(code) {
			t.Errorf("%d should not be retryable", code)
		}
	}
}
