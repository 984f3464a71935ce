package authtypes

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAccounts(t *testing.T) {
	accounts, err := ParseAccounts(`[
		{"userid": "FT001", "password": "p1", "totp": "123456"},
		{"username": "FT002", "password": "p2"}
	]`)
	require.NoError(t, err)
	require.Len(t, accounts, 2)

	assert.Equal(t, "FT001", accounts[0].ID())
	assert.True(t, accounts[0].HasOTP())
	assert.Equal(t, "FT002", accounts[1].ID())
	assert.False(t, accounts[1].HasOTP())
}

func TestParseAccounts_Invalid(t *testing.T) {
	cases := map[string]string{
		"empty string": "",
		"empty array":  "[]",
		"object":       `{"userid": "x"}`,
		"garbage":      "not json",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseAccounts(raw)
			require.Error(t, err)
			assert.True(t, IsConfigError(err))
		})
	}

	_, err := ParseAccounts("[]")
	assert.True(t, errors.Is(err, ErrNoAccounts))
}

func TestValidateAccounts(t *testing.T) {
	assert.NoError(t, ValidateAccounts([]Account{{UserID: "a"}, {Username: "b"}}, 3))

	err := ValidateAccounts([]Account{{UserID: "a"}, {Password: "orphan"}}, 3)
	require.Error(t, err)
	var ce *ConfigError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "accounts[1]", ce.Field)

	assert.ErrorIs(t, ValidateAccounts(nil, 3), ErrNoAccounts)
}

func TestValidateAccounts_IgnoresAccountsPastLimit(t *testing.T) {
	accounts := []Account{{UserID: "a"}, {UserID: "b"}, {UserID: "c"}, {Password: "orphan"}}

	assert.NoError(t, ValidateAccounts(accounts, 3))
	assert.True(t, IsConfigError(ValidateAccounts(accounts, 4)))
	assert.True(t, IsConfigError(ValidateAccounts(accounts, 0)), "no limit checks every account")
	assert.Len(t, Processable(accounts, 3), 3)
	assert.Len(t, Processable(accounts, 0), 4)
}

func TestAccount_StringHidesSecrets(t *testing.T) {
	acc := Account{UserID: "FT001", Password: "hunter2", TOTP: "654321"}
	assert.Equal(t, "account(FT001)", acc.String())
	assert.NotContains(t, acc.String(), "hunter2")
}

func TestLoginOutcome_Succeeded(t *testing.T) {
	lenient := SuccessPolicy{TimedOutIsSuccess: true}
	strict := SuccessPolicy{TimedOutIsSuccess: false}

	confirmed := LoginOutcome{AccountID: "a", Status: OutcomeConfirmed}
	timedOut := LoginOutcome{AccountID: "b", Status: OutcomeTimedOut}
	failed := FailedOutcome("c", errors.New("boom"))

	assert.True(t, confirmed.Succeeded(lenient))
	assert.True(t, confirmed.Succeeded(strict))
	assert.True(t, timedOut.Succeeded(lenient))
	assert.False(t, timedOut.Succeeded(strict))
	assert.False(t, failed.Succeeded(lenient))
	assert.Equal(t, "boom", failed.Error)
}

func TestAttemptState_Terminal(t *testing.T) {
	assert.False(t, StateStart.Terminal())
	assert.False(t, StateFieldsFilled.Terminal())
	assert.False(t, StateSubmitted.Terminal())
	assert.True(t, StateConfirmed.Terminal())
	assert.True(t, StateTimedOut.Terminal())
}

func TestErrorsUnwrap(t *testing.T) {
	root := errors.New("host unreachable")
	fatal := &FatalError{Stage: "navigate", Err: root}
	assert.True(t, IsFatal(fatal))
	assert.ErrorIs(t, fatal, root)
	assert.Contains(t, fatal.Error(), "navigate")

	attempt := &AttemptError{AccountID: "FT001", Step: "fill password", Err: root}
	assert.ErrorIs(t, attempt, root)
	assert.False(t, IsFatal(attempt))
}
