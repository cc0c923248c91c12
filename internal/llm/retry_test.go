package llm

import (
	"errors"
	"testing"
)

func TestIsRetryableError(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("429 too many requests"), true},
		{errors.New("rate_limit_exceeded"), true},
		{errors.New("500 internal server error"), true},
		{errors.New("connection reset by peer"), true},
		{errors.New("context deadline exceeded"), true},
		{errors.New("401 unauthorized"), false},
		{errors.New("invalid request: missing field"), false},
	}
	for _, c := range cases {
		if got := IsRetryableError(c.err); got != c.want {
			t.Errorf("IsRetryableError(%v) = %v, want %v", c.err, got, c.want)
		}
	}
}

func TestBackoffDelayLinear(t *testing.T) {
	base := backoffDelay(1, 3)
	if base != 3 {
		t.Errorf("backoffDelay(1, 3) = %v, want 3", base)
	}
}
