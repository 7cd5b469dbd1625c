package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestAppErrorMessage(t *testing.T) {
	err := Transport("send failed", fmt.Errorf("broken pipe"))
	want := "TRANSPORT: send failed: broken pipe"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestSentinelMatching(t *testing.T) {
	err := Transport("request rejected", ErrNotConnected)
	if !errors.Is(err, ErrNotConnected) {
		t.Error("wrapped ErrNotConnected not matched")
	}
	if errors.Is(err, ErrClientStopped) {
		t.Error("unrelated sentinel matched")
	}
}

func TestApplicationDefaultsCode(t *testing.T) {
	err := Application("", "something failed")
	if err.Code != ErrCodeApplication {
		t.Errorf("code = %q", err.Code)
	}
	err = Application("RATE_LIMITED", "slow down")
	if err.Code != "RATE_LIMITED" {
		t.Errorf("code = %q", err.Code)
	}
}

func TestCloseErrorMessage(t *testing.T) {
	err := &CloseError{StatusCode: 4008, Reason: "auth failed"}
	want := "connection closed (code 4008): auth failed"
	if err.Error() != want {
		t.Errorf("Error() = %q", err.Error())
	}

	bare := &CloseError{StatusCode: 1006}
	if bare.Error() != "connection closed (code 1006)" {
		t.Errorf("Error() = %q", bare.Error())
	}
}

func TestWrapPreservesCode(t *testing.T) {
	inner := Auth("handshake rejected")
	wrapped := Wrap(inner, "connect failed")
	if wrapped.Code != ErrCodeAuth {
		t.Errorf("code = %q, want %q", wrapped.Code, ErrCodeAuth)
	}
	if !errors.Is(wrapped, inner) {
		t.Error("wrapped error lost its cause")
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(nil, "context") != nil {
		t.Error("Wrap(nil) should be nil")
	}
}
