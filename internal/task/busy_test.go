package task

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

type busyCodeError struct{}

func (busyCodeError) Error() string { return "locked" }
func (busyCodeError) Code() int     { return sqliteBusyCode }

func TestIsSQLiteBusy(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"code", busyCodeError{}, true},
		{"wrapped code", fmt.Errorf("update task: %w", busyCodeError{}), true},
		{"message busy", errors.New("stmt: SQLITE_BUSY"), true},
		{"message locked", errors.New("database is locked (5)"), true},
		{"other", errors.New("no such table"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := isSQLiteBusy(tc.err); got != tc.want {
				t.Fatalf("isSQLiteBusy(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestRetryOnBusyRetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := retryOnBusy(context.Background(), func() error {
		calls++
		if calls < 3 {
			return busyCodeError{}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("retryOnBusy: %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestRetryOnBusyStopsOnOtherErrors(t *testing.T) {
	calls := 0
	wantErr := errors.New("no such column")
	err := retryOnBusy(context.Background(), func() error {
		calls++
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want %v", err, wantErr)
	}
	if calls != 1 {
		t.Fatalf("non-busy errors must not retry, calls = %d", calls)
	}
}

func TestRetryOnBusyBounded(t *testing.T) {
	calls := 0
	err := retryOnBusy(context.Background(), func() error {
		calls++
		return busyCodeError{}
	})
	if !isSQLiteBusy(err) {
		t.Fatalf("exhausted retry must surface the busy error, got %v", err)
	}
	if calls != busyRetryAttempts {
		t.Fatalf("calls = %d, want %d", calls, busyRetryAttempts)
	}
}
