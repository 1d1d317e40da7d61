package platform

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestIsTransient(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "cancelled context", err: context.Canceled, want: false},
		{name: "deadline exceeded", err: context.DeadlineExceeded, want: true},
		{name: "unclassified error", err: errors.New("device unreachable"), want: true},
		{
			name: "permanent gateway rejection",
			err:  &GatewayError{StatusCode: 400, Message: "invalid device token", Transient: false},
			want: false,
		},
		{
			name: "transient gateway failure",
			err:  &GatewayError{StatusCode: 503, Message: "gateway overloaded", Transient: true},
			want: true,
		},
		{
			name: "wrapped permanent gateway rejection",
			err:  fmt.Errorf("push presentation failed: %w", &GatewayError{StatusCode: 404, Transient: false}),
			want: false,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if got := IsTransient(tc.err); got != tc.want {
				t.Fatalf("IsTransient(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}
