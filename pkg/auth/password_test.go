package auth

import "testing"

func TestHashPasswordAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("Livraria#2025")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	if hash == "" {
		t.Fatalf("expected non-empty hash")
	}
	if !CheckPassword("Livraria#2025", hash) {
		t.Fatalf("expected password check to pass")
	}
	if CheckPassword("wrong", hash) {
		t.Fatalf("expected password check to fail")
	}
	if CheckPassword("Livraria#2025", "") {
		t.Fatalf("empty hash must never match")
	}
}

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		ok       bool
	}{
		{name: "valid", password: "Str0ng#Password!", ok: true},
		{name: "short", password: "short1!A"},
		{name: "no uppercase", password: "alllowercase123!"},
		{name: "no lowercase", password: "ALLUPPERCASE123!"},
		{name: "no digit", password: "NoDigitsHere!!!"},
		{name: "no symbol", password: "NoSpecials1234"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidatePassword(tc.password)
			if tc.ok && err != nil {
				t.Fatalf("expected valid password, got: %v", err)
			}
			if !tc.ok && err == nil {
				t.Fatalf("expected %q to fail", tc.password)
			}
		})
	}
}
