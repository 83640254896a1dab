package crypto

import (
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestHashSecret(t *testing.T) {
	hash, err := HashSecret("pprof-password", bcrypt.MinCost)
	if err != nil {
		t.Fatalf("HashSecret failed: %v", err)
	}

	if !IsHash(hash) {
		t.Errorf("expected bcrypt hash, got %s", hash)
	}
	if err := VerifySecret("pprof-password", hash); err != nil {
		t.Errorf("expected match, got %v", err)
	}
	if err := VerifySecret("wrong", hash); !errors.Is(err, ErrSecretMismatch) {
		t.Errorf("expected ErrSecretMismatch, got %v", err)
	}
}

func TestHashSecret_Errors(t *testing.T) {
	if _, err := HashSecret("", DefaultCost); !errors.Is(err, ErrEmptySecret) {
		t.Errorf("expected ErrEmptySecret, got %v", err)
	}
	if _, err := HashSecret(strings.Repeat("a", 73), DefaultCost); !errors.Is(err, ErrSecretTooLong) {
		t.Errorf("expected ErrSecretTooLong, got %v", err)
	}
}

func TestHashSecret_CostClamped(t *testing.T) {
	hash, err := HashSecret("secret", 1)
	if err != nil {
		t.Fatalf("HashSecret failed: %v", err)
	}
	cost, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		t.Fatalf("bcrypt.Cost failed: %v", err)
	}
	if cost != bcrypt.MinCost {
		t.Errorf("expected cost %d, got %d", bcrypt.MinCost, cost)
	}
}

func TestVerifySecret_Plain(t *testing.T) {
	tests := []struct {
		name     string
		provided string
		expected string
		wantErr  error
	}{
		{"match", "admin", "admin", nil},
		{"mismatch", "admin", "admin2", ErrSecretMismatch},
		{"empty provided", "", "admin", ErrEmptySecret},
		{"empty expected", "admin", "", ErrEmptySecret},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := VerifySecret(tt.provided, tt.expected)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestIsHash(t *testing.T) {
	if IsHash("$2a$short") {
		t.Error("short string should not be a hash")
	}
	if IsHash(strings.Repeat("x", 60)) {
		t.Error("string without bcrypt prefix should not be a hash")
	}
}
