package authtypes

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Account is one broker login. Immutable for the duration of a run.
type Account struct {
	UserID     string `json:"userid" mapstructure:"userid"`
	Username   string `json:"username" mapstructure:"username"`
	Password   string `json:"password" mapstructure:"password"`
	TOTP       string `json:"totp,omitempty" mapstructure:"totp"`
	TOTPSecret string `json:"totp_secret,omitempty" mapstructure:"totp_secret"`
}

// ID returns the account identifier, preferring userid over username.
func (a Account) ID() string {
	if a.UserID != "" {
		return a.UserID
	}
	return a.Username
}

// HasOTP reports whether the OTP step applies to this account.
func (a Account) HasOTP() bool {
	return a.TOTP != "" || a.TOTPSecret != ""
}

// String never includes secrets.
func (a Account) String() string {
	return fmt.Sprintf("account(%s)", a.ID())
}

// ParseAccounts decodes a JSON array of accounts. An empty or malformed
// array is a configuration error.
func ParseAccounts(raw string) ([]Account, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, &ConfigError{Field: "accounts", Err: ErrNoAccounts}
	}
	var accounts []Account
	if err := json.Unmarshal([]byte(raw), &accounts); err != nil {
		return nil, &ConfigError{Field: "accounts", Err: fmt.Errorf("must be a JSON array of account objects: %w", err)}
	}
	if len(accounts) == 0 {
		return nil, &ConfigError{Field: "accounts", Err: ErrNoAccounts}
	}
	return accounts, nil
}

// Processable returns the accounts a run can reach: the first limit of
// them, or all when limit is not positive.
func Processable(accounts []Account, limit int) []Account {
	if limit > 0 && len(accounts) > limit {
		return accounts[:limit]
	}
	return accounts
}

// ValidateAccounts checks the invariants every processable account must
// hold. Accounts past limit are never processed and are not checked.
func ValidateAccounts(accounts []Account, limit int) error {
	if len(accounts) == 0 {
		return &ConfigError{Field: "accounts", Err: ErrNoAccounts}
	}
	for i, acc := range Processable(accounts, limit) {
		if acc.ID() == "" {
			return &ConfigError{Field: fmt.Sprintf("accounts[%d]", i), Err: fmt.Errorf("userid or username is required")}
		}
	}
	return nil
}

// AttemptState is the state of a single login attempt.
type AttemptState string

const (
	StateStart        AttemptState = "start"
	StateFieldsFilled AttemptState = "fields_filled"
	StateSubmitted    AttemptState = "submitted"
	StateConfirmed    AttemptState = "confirmed"
	StateTimedOut     AttemptState = "timed_out"
)

// Terminal reports whether no further transition is possible.
func (s AttemptState) Terminal() bool {
	return s == StateConfirmed || s == StateTimedOut
}

// OutcomeStatus is what a session reports for one account.
type OutcomeStatus string

const (
	OutcomeConfirmed OutcomeStatus = "confirmed"
	OutcomeTimedOut  OutcomeStatus = "timed_out"
	OutcomeFailed    OutcomeStatus = "failed"
)

// SuccessPolicy decides which statuses count as succeeded in the ledger.
// Confirmed always counts; Failed never does.
type SuccessPolicy struct {
	TimedOutIsSuccess bool
}

// LoginOutcome is the result of one AccountSession.
type LoginOutcome struct {
	AccountID string        `json:"account_id"`
	Status    OutcomeStatus `json:"status"`
	// Skipped lists roles whose cascade found nothing.
	Skipped  []string      `json:"skipped,omitempty"`
	Address  string        `json:"address,omitempty"`
	Duration time.Duration `json:"duration"`
	Err      error         `json:"-"`
	Error    string        `json:"error,omitempty"`
}

// Succeeded applies the policy to the outcome.
func (o LoginOutcome) Succeeded(p SuccessPolicy) bool {
	switch o.Status {
	case OutcomeConfirmed:
		return true
	case OutcomeTimedOut:
		return p.TimedOutIsSuccess
	default:
		return false
	}
}

// FailedOutcome builds a failed outcome carrying err.
func FailedOutcome(accountID string, err error) LoginOutcome {
	o := LoginOutcome{AccountID: accountID, Status: OutcomeFailed, Err: err}
	if err != nil {
		o.Error = err.Error()
	}
	return o
}

// RunStatus is the lifecycle of a run submitted over HTTP.
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// Run tracks one batch execution triggered through the API.
type Run struct {
	ID        uuid.UUID  `json:"id"`
	Status    RunStatus  `json:"status"`
	Accounts  int        `json:"accounts"`
	Ledger    *RunLedger `json:"ledger,omitempty"`
	Error     string     `json:"error,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// UpdateStatus updates the run status and timestamp.
func (r *Run) UpdateStatus(status RunStatus) {
	r.Status = status
	r.UpdatedAt = time.Now().UTC()
}
