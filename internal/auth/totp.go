package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/copyleftdev/brokerlogin/internal/authtypes"
)

var codeOpts = totp.ValidateOpts{
	Period:    30,
	Skew:      1,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

func cleanSecret(secret string) string {
	return strings.ToUpper(strings.ReplaceAll(secret, " ", ""))
}

// GenerateTOTP returns the current code for a base32 secret.
func GenerateTOTP(secret string) (string, error) {
	return GenerateTOTPAt(secret, time.Now().UTC())
}

// GenerateTOTPAt returns the code valid at the given instant.
func GenerateTOTPAt(secret string, at time.Time) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("totp secret cannot be empty")
	}

	passcode, err := totp.GenerateCodeCustom(cleanSecret(secret), at, codeOpts)
	if err != nil {
		return "", fmt.Errorf("failed to generate totp code: %w", err)
	}

	return passcode, nil
}

// ValidateTOTP checks a passcode against a secret at the current time.
func ValidateTOTP(passcode, secret string) (bool, error) {
	if secret == "" {
		return false, fmt.Errorf("totp secret cannot be empty")
	}
	if passcode == "" {
		return false, fmt.Errorf("passcode cannot be empty")
	}

	valid, err := totp.ValidateCustom(passcode, cleanSecret(secret), time.Now().UTC(), codeOpts)
	if err != nil {
		return false, fmt.Errorf("failed to validate totp code: %w", err)
	}

	return valid, nil
}

// OneTimeCode resolves the OTP value for an account. A literal code wins
// over a secret. ok is false when the account carries neither, in which
// case the OTP step is skipped.
func OneTimeCode(acc authtypes.Account) (code string, ok bool, err error) {
	if acc.TOTP != "" {
		return acc.TOTP, true, nil
	}
	if acc.TOTPSecret == "" {
		return "", false, nil
	}
	code, err = GenerateTOTP(acc.TOTPSecret)
	if err != nil {
		return "", false, err
	}
	return code, true, nil
}

// CheckSecrets verifies every configured secret can produce a code.
func CheckSecrets(accounts []authtypes.Account) error {
	for i, acc := range accounts {
		if acc.TOTP != "" || acc.TOTPSecret == "" {
			continue
		}
		if _, err := GenerateTOTP(acc.TOTPSecret); err != nil {
			return &authtypes.ConfigError{Field: fmt.Sprintf("accounts[%d].totp_secret", i), Err: err}
		}
	}
	return nil
}
