package pipeline

import (
	"strings"
	"testing"
)

func TestGenerateCredentials(t *testing.T) {
	tests := []struct {
		email         string
		applicationID string
		prefix        string
	}{
		{"Ada.Lovelace@Example.com", "app-1", "ada.lovelace_"},
		{"", "app-17", "app17_"},
		{"+++@example.com", "APP_42", "app_42_"},
		{"", "9b2c4f1e-7a3d-4c8b-9f21-0e6d5a4b3c2d", "9b2c4f1e7a3d4c8b9f21_"},
		{"", "---", "candidate_"},
		{"averyveryveryverylongemailaddress@example.com", "app-1", "averyveryveryverylon_"},
	}

	for _, tt := range tests {
		creds, err := GenerateCredentials(tt.email, tt.applicationID)
		if err != nil {
			t.Fatalf("GenerateCredentials(%q, %q): %v", tt.email, tt.applicationID, err)
		}
		if !strings.HasPrefix(creds.LoginID, tt.prefix) {
			t.Errorf("login %q does not start with %q", creds.LoginID, tt.prefix)
		}
		if len(creds.LoginID) != len(tt.prefix)+loginSuffixLen {
			t.Errorf("unexpected login length %q", creds.LoginID)
		}
		if len(creds.Password) != passwordLength {
			t.Errorf("password length %d, want %d", len(creds.Password), passwordLength)
		}
		for _, r := range creds.Password {
			if !strings.ContainsRune(passwordAlphabet, r) {
				t.Errorf("password contains %q outside the alphabet", r)
			}
		}
	}
}

func TestGenerateCredentialsAreRandom(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		creds, err := GenerateCredentials("ada@example.com", "app-1")
		if err != nil {
			t.Fatal(err)
		}
		if seen[creds.Password] {
			t.Fatalf("password repeated: %s", creds.Password)
		}
		seen[creds.Password] = true
	}
}

func TestCredentialsWithoutEmailAreDistinctPerApplication(t *testing.T) {
	a, err := GenerateCredentials("", "app-1001")
	if err != nil {
		t.Fatal(err)
	}
	b, err := GenerateCredentials("", "app-1002")
	if err != nil {
		t.Fatal(err)
	}

	baseA := a.LoginID[:len(a.LoginID)-loginSuffixLen-1]
	baseB := b.LoginID[:len(b.LoginID)-loginSuffixLen-1]
	if baseA != "app1001" || baseB != "app1002" {
		t.Fatalf("expected application based logins, got %q and %q", a.LoginID, b.LoginID)
	}
}
