package pipeline

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

const (
	passwordLength   = 12
	loginSuffixLen   = 4
	maxLoginLocalLen = 20

	// look-alike characters (0/O, 1/l/I) are excluded
	passwordAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz23456789"
	suffixAlphabet   = "abcdefghijkmnpqrstuvwxyz23456789"
)

// Credentials are the login issued to a shortlisted candidate
type Credentials struct {
	LoginID  string
	Password string
}

// CredentialGenerator issues credentials for a candidate, identified by email when known
// and by application id otherwise
type CredentialGenerator func(email, applicationID string) (Credentials, error)

// GenerateCredentials derives a login id from the local part of email plus a random
// suffix, and a one-time password from crypto/rand. Candidates without a usable email
// get a login based on their application id instead.
func GenerateCredentials(email, applicationID string) (Credentials, error) {
	suffix, err := randomString(suffixAlphabet, loginSuffixLen)
	if err != nil {
		return Credentials{}, fmt.Errorf("generate login suffix: %w", err)
	}
	password, err := randomString(passwordAlphabet, passwordLength)
	if err != nil {
		return Credentials{}, fmt.Errorf("generate password: %w", err)
	}
	return Credentials{
		LoginID:  loginBase(email, applicationID) + "_" + suffix,
		Password: password,
	}, nil
}

func loginBase(email, applicationID string) string {
	local := strings.ToLower(strings.TrimSpace(email))
	if at := strings.IndexByte(local, '@'); at >= 0 {
		local = local[:at]
	}
	if base := sanitizeLogin(local); base != "" {
		return base
	}
	if base := sanitizeLogin(strings.ToLower(applicationID)); base != "" {
		return base
	}
	return "candidate"
}

// sanitizeLogin keeps [a-z0-9._] and truncates to the login length limit
func sanitizeLogin(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '_':
			b.WriteRune(r)
		}
		if b.Len() >= maxLoginLocalLen {
			break
		}
	}
	return b.String()
}

func randomString(alphabet string, n int) (string, error) {
	max := big.NewInt(int64(len(alphabet)))
	out := make([]byte, n)
	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = alphabet[idx.Int64()]
	}
	return string(out), nil
}
