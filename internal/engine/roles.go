package engine

import (
	"fmt"
	"sort"

	"github.com/copyleftdev/brokerlogin/internal/authtypes"
	"github.com/copyleftdev/brokerlogin/internal/browser"
)

// Role is the semantic purpose of a UI element.
type Role string

const (
	RoleUsername         Role = "username"
	RoleUsernameFallback Role = "username_fallback"
	RolePassword         Role = "password"
	RoleOTP              Role = "otp"
	RoleSubmit           Role = "submit"
	RoleLoginTrigger     Role = "login_trigger"
	RoleLoginTriggerAlt  Role = "login_trigger_alt"
	RoleHostLogin        Role = "host_login"
	RoleHostPhone        Role = "host_phone"
	RoleHostPassword     Role = "host_password"
	RoleHostSubmit       Role = "host_submit"
)

// SelectorSpec is an ordered candidate list; earlier entries win.
type SelectorSpec []browser.Locator

// RoleTable maps each role to its candidates.
type RoleTable map[Role]SelectorSpec

func locators(exprs ...string) SelectorSpec {
	out := make(SelectorSpec, len(exprs))
	for i, e := range exprs {
		out[i] = browser.MustParseLocator(e)
	}
	return out
}

// DefaultRoles is the candidate table for the AlgoTest host and the
// Flattrade broker login page.
func DefaultRoles() RoleTable {
	return RoleTable{
		RoleUsername: locators(
			"input[name='user_id']",
			"input[name='userid']",
			"input[name='username']",
			"input[id*='user']",
			"input[placeholder*='User']",
			"input[type='text']",
		),
		RoleUsernameFallback: locators("input[type='text'], input:not([type])"),
		RolePassword: locators(
			"input[name='password']",
			"input[type='password']",
			"input[id*='pass']",
			"input[placeholder*='Password']",
		),
		RoleOTP: locators(
			"input[name='otp']",
			"input[id*='otp']",
			"input[placeholder*='OTP']",
			"input[placeholder*='TOTP']",
		),
		RoleSubmit: locators(
			"button:has-text('Login')",
			"button:has-text('Submit')",
			"button[type='submit']",
			"input[type='submit']",
		),
		RoleLoginTrigger:    locators("button:has-text('Login')"),
		RoleLoginTriggerAlt: locators("a:has-text('Login')", "[role='button']:has-text('Login')"),
		RoleHostLogin: locators(
			"text=Login",
			"button:has-text('Login')",
			"a:has-text('Login')",
		),
		RoleHostPhone:    locators("input[name='phone']", "input[type='tel']"),
		RoleHostPassword: locators("input[type='password']"),
		RoleHostSubmit:   locators("button:has-text('Login')"),
	}
}

// WithOverrides returns a copy of t where each named role's candidates are
// replaced. Unknown role names are rejected.
func (t RoleTable) WithOverrides(overrides map[string][]string) (RoleTable, error) {
	out := make(RoleTable, len(t))
	for role, s := range t {
		out[role] = append(SelectorSpec(nil), s...)
	}

	names := make([]string, 0, len(overrides))
	for name := range overrides {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		role := Role(name)
		if _, ok := t[role]; !ok {
			return nil, &authtypes.ConfigError{Field: "selectors." + name, Err: fmt.Errorf("unknown role")}
		}
		locs, err := browser.ParseLocators(overrides[name])
		if err != nil {
			return nil, &authtypes.ConfigError{Field: "selectors." + name, Err: err}
		}
		if len(locs) == 0 {
			return nil, &authtypes.ConfigError{Field: "selectors." + name, Err: fmt.Errorf("needs at least one locator")}
		}
		out[role] = locs
	}
	return out, nil
}

// Roles lists the table's roles in a stable order.
func (t RoleTable) Roles() []Role {
	roles := make([]Role, 0, len(t))
	for r := range t {
		roles = append(roles, r)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
	return roles
}
