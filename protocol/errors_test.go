package protocol

import (
	"errors"
	"fmt"
	"testing"
)

func TestResultError(t *testing.T) {
	tests := []struct {
		name     string
		code     int8
		wantNil  bool
		sentinel error
	}{
		{"ok", 0, true, nil},
		{"generic", -1, false, ErrGeneric},
		{"authentication", -2, false, ErrAuthentication},
		{"not authenticated", -3, false, ErrNotAuthenticated},
		{"not supported", -4, false, ErrNotSupported},
		{"argument", -5, false, ErrArgument},
		{"not found", -11, false, ErrNotFound},
		{"timeout", -13, false, ErrTimeout},
		{"key revoked", -14, false, ErrKeyRevoked},
		{"io", -17, false, ErrIO},
		{"positive code accepted", 4, false, ErrNotSupported},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ResultError("test op", tt.code)
			if tt.wantNil {
				if err != nil {
					t.Fatalf("expected nil, got %v", err)
				}
				return
			}
			if !errors.Is(err, tt.sentinel) {
				t.Errorf("errors.Is(%v, %v) = false", err, tt.sentinel)
			}
		})
	}
}

func TestErrorIsDistinguishesKinds(t *testing.T) {
	err := ResultError("erase", -int8(KindTimeout))
	if errors.Is(err, ErrIO) {
		t.Error("timeout error matched ErrIO")
	}
	wrapped := fmt.Errorf("outer: %w", err)
	if !errors.Is(wrapped, ErrTimeout) {
		t.Error("wrapped error lost its kind")
	}
	if KindOf(wrapped) != KindTimeout {
		t.Errorf("KindOf = %v, want %v", KindOf(wrapped), KindTimeout)
	}
}

func TestErrorMessage(t *testing.T) {
	err := &Error{Op: "partition verify", Kind: KindPartVerify}
	want := "partition verify failed: Partition verify failed"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}

	cause := errors.New("broken pipe")
	err = &Error{Op: "write", Kind: KindIO, Err: cause}
	if !errors.Is(err, cause) {
		t.Error("Unwrap does not expose the cause")
	}
	if !IsProtocolError(fmt.Errorf("x: %w", err)) {
		t.Error("IsProtocolError = false for wrapped *Error")
	}
}

func TestKindOfForeignError(t *testing.T) {
	if KindOf(nil) != KindOK {
		t.Error("KindOf(nil) should be KindOK")
	}
	if KindOf(errors.New("x")) != KindGeneric {
		t.Error("KindOf(foreign) should be KindGeneric")
	}
}
