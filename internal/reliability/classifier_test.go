package reliability

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/antoniostano/chatstore/internal/store"
)

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{store.ErrUnavailable, true},
		{fmt.Errorf("redis put: %w: connection refused", store.ErrUnavailable), true},
		{store.ErrNotFound, false},
		{store.ErrUnsupported, false},
		{errors.New("decode failure"), false},
		{nil, false},
	}
	for _, tc := range cases {
		if got := IsRetryable(tc.err); got != tc.want {
			t.Errorf("IsRetryable(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestIsRetryableHTTPStatus(t *testing.T) {
	for _, code := range []int{429, 500, 502, 503, 504} {
		if !IsRetryableHTTPStatus(code) {
			t.Errorf("IsRetryableHTTPStatus(%d) = false, want true", code)
		}
	}
	for _, code := range []int{200, 201, 400, 404, 422} {
		if IsRetryableHTTPStatus(code) {
			t.Errorf("IsRetryableHTTPStatus(%d) = true, want false", code)
		}
	}
}

func TestExponentialBackoffCaps(t *testing.T) {
	base := 100 * time.Millisecond
	cap := time.Second

	if got := ExponentialBackoff(0, base, cap); got != base {
		t.Errorf("attempt 0 backoff = %v, want %v", got, base)
	}
	if got := ExponentialBackoff(1, base, cap); got != 200*time.Millisecond {
		t.Errorf("attempt 1 backoff = %v, want 200ms", got)
	}
	if got := ExponentialBackoff(10, base, cap); got != cap {
		t.Errorf("attempt 10 backoff = %v, want cap %v", got, cap)
	}
}
