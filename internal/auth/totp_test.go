package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copyleftdev/brokerlogin/internal/authtypes"
)

// RFC 6238 test secret ("12345678901234567890" in base32).
const rfcSecret = "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ"

func TestGenerateTOTPAt_RFCVector(t *testing.T) {
	code, err := GenerateTOTPAt(rfcSecret, time.Unix(59, 0).UTC())
	require.NoError(t, err)
	assert.Equal(t, "287082", code)
}

func TestGenerateTOTP_RoundTrip(t *testing.T) {
	code, err := GenerateTOTP("gezd gnbv gy3t qojq gezd gnbv gy3t qojq")
	require.NoError(t, err)
	assert.Len(t, code, 6)

	valid, err := ValidateTOTP(code, rfcSecret)
	require.NoError(t, err)
	assert.True(t, valid)
}

func TestGenerateTOTP_Errors(t *testing.T) {
	_, err := GenerateTOTP("")
	assert.Error(t, err)

	_, err = GenerateTOTP("not-base32!!")
	assert.Error(t, err)

	_, err = ValidateTOTP("", rfcSecret)
	assert.Error(t, err)
}

func TestOneTimeCode(t *testing.T) {
	code, ok, err := OneTimeCode(authtypes.Account{UserID: "a", TOTP: "111111", TOTPSecret: rfcSecret})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "111111", code, "literal code wins over secret")

	code, ok, err = OneTimeCode(authtypes.Account{UserID: "b", TOTPSecret: rfcSecret})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Len(t, code, 6)

	_, ok, err = OneTimeCode(authtypes.Account{UserID: "c"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCheckSecrets(t *testing.T) {
	assert.NoError(t, CheckSecrets([]authtypes.Account{
		{UserID: "a"},
		{UserID: "b", TOTPSecret: rfcSecret},
		{UserID: "c", TOTP: "123456", TOTPSecret: "ignored because literal wins"},
	}))

	err := CheckSecrets([]authtypes.Account{{UserID: "a", TOTPSecret: "%%%"}})
	require.Error(t, err)
	assert.True(t, authtypes.IsConfigError(err))
}
