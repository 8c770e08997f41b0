// ABOUTME: Unit tests for authentication context functions
// ABOUTME: Tests context propagation and the subject check

package auth

import (
	"context"
	"errors"
	"testing"
)

func TestFromContext(t *testing.T) {
	if got := FromContext(context.Background()); got != nil {
		t.Errorf("FromContext() = %v, want nil", got)
	}

	ctx := WithAuth(context.Background(), &AuthContext{Subject: "u1"})
	got := FromContext(ctx)
	if got == nil || got.Subject != "u1" {
		t.Errorf("FromContext() = %v, want subject u1", got)
	}
}

func TestCheckSubject(t *testing.T) {
	authed := WithAuth(context.Background(), &AuthContext{Subject: "u1"})

	tests := []struct {
		name    string
		ctx     context.Context
		userID  string
		wantErr bool
	}{
		{"no auth passes", context.Background(), "anyone", false},
		{"matching subject", authed, "u1", false},
		{"different subject", authed, "u2", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckSubject(tt.ctx, tt.userID)
			if tt.wantErr {
				if !errors.Is(err, ErrSubjectMismatch) {
					t.Errorf("CheckSubject() error = %v, want ErrSubjectMismatch", err)
				}
				return
			}
			if err != nil {
				t.Errorf("CheckSubject() error = %v", err)
			}
		})
	}
}
