package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/copyleftdev/brokerlogin/internal/authtypes"
	"github.com/copyleftdev/brokerlogin/internal/browser"
	"github.com/copyleftdev/brokerlogin/internal/browser/mocks"
	"github.com/copyleftdev/brokerlogin/internal/config"
	notifymocks "github.com/copyleftdev/brokerlogin/internal/notify/mocks"
)

func testConfig(timedOutIsSuccess bool) *config.Config {
	batch := defaultBatch()
	batch.TimedOutIsSuccess = timedOutIsSuccess
	return &config.Config{
		Host: config.HostConfig{
			URL:          "https://algotest.in",
			Navigation:   []string{"Algo Trade", "Broker Login"},
			BrokerMarker: "Flattrade",
		},
		Batch:   batch,
		Timing:  fastTiming(),
		Browser: config.BrowserConfig{ShutdownTimeout: time.Second},
	}
}

// brokerHost is a host surface already showing the menu entries and the
// broker tile, with one login trigger per page.
func brokerHost(pages ...*mocks.MockSurface) *mocks.MockSurface {
	host := hostWithTriggers(pages...)
	host.AddElement(browser.Locator{Text: "Algo Trade"}, true)
	host.AddElement(browser.Locator{Text: "Broker Login"}, true)
	host.AddElement(browser.Locator{Text: "Flattrade"}, true)
	return host
}

func TestRunner_EndToEnd(t *testing.T) {
	accs := []authtypes.Account{
		{UserID: "FT001", Password: "pw1"},
		{UserID: "FT002", Password: "pw2", TOTP: "654321"},
	}

	cases := []struct {
		name              string
		timedOutIsSuccess bool
		succeeded         []string
		failed            []string
	}{
		{name: "timed out counts as success", timedOutIsSuccess: true, succeeded: []string{"FT001", "FT002"}, failed: []string{}},
		{name: "timed out counts as failure", timedOutIsSuccess: false, succeeded: []string{"FT001"}, failed: []string{"FT002"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			confirmed := brokerSurface("broker-1")
			confirmed.SetAddresses("https://auth.flattrade.in/", "https://algotest.in/dashboard")
			stuck := brokerSurface("broker-2")
			stuck.AddElement(otpLoc, true)
			host := brokerHost(confirmed, stuck)
			launcher := mocks.NewMockLauncher(host)
			rec := notifymocks.NewRecorder()

			runner, err := NewRunner(testConfig(tc.timedOutIsSuccess), launcher, rec, zaptest.NewLogger(t))
			require.NoError(t, err)

			ledger, err := runner.Execute(context.Background(), accs)
			require.NoError(t, err)

			assert.Equal(t, tc.succeeded, ledger.Succeeded)
			assert.Equal(t, tc.failed, ledger.Failed)
			require.Len(t, ledger.Outcomes, 2)
			assert.Equal(t, authtypes.OutcomeConfirmed, ledger.Outcomes[0].Status)
			assert.Equal(t, authtypes.OutcomeTimedOut, ledger.Outcomes[1].Status)

			assert.Equal(t, []string{"https://algotest.in"}, host.Navigations())
			assert.Zero(t, host.CloseCalls())
			assert.Equal(t, 1, confirmed.CloseCalls())
			assert.Equal(t, 1, stuck.CloseCalls())
			assert.Contains(t, stuck.Fills(), mocks.FillCall{Locator: otpLoc, Value: "654321"})
			assert.True(t, launcher.WasShutdownCalled())

			require.Len(t, rec.Messages(), 1)
			assert.Equal(t, ledger.Summary("Flattrade Auth"), rec.Messages()[0])
		})
	}
}

func TestRunner_ConfigErrorBeforeBrowser(t *testing.T) {
	launcher := mocks.NewMockLauncher(mocks.NewMockSurface("host"))
	rec := notifymocks.NewRecorder()
	runner, err := NewRunner(testConfig(true), launcher, rec, zaptest.NewLogger(t))
	require.NoError(t, err)

	_, err = runner.Execute(context.Background(), nil)
	assert.True(t, authtypes.IsConfigError(err))
	assert.ErrorIs(t, err, authtypes.ErrNoAccounts)

	_, err = runner.Execute(context.Background(), []authtypes.Account{{Password: "pw"}})
	assert.True(t, authtypes.IsConfigError(err))

	_, err = runner.Execute(context.Background(), []authtypes.Account{{UserID: "FT001", TOTPSecret: "not base32!"}})
	assert.True(t, authtypes.IsConfigError(err))

	assert.Zero(t, launcher.Opened())
	assert.Empty(t, rec.Messages())
}

func TestRunner_IgnoresAccountsPastCap(t *testing.T) {
	accs := append(accounts(3), authtypes.Account{Password: "orphan", TOTPSecret: "not base32!"})
	host := brokerHost(confirmingPages(4)...)
	launcher := mocks.NewMockLauncher(host)

	runner, err := NewRunner(testConfig(true), launcher, notifymocks.NewRecorder(), zaptest.NewLogger(t))
	require.NoError(t, err)

	ledger, err := runner.Execute(context.Background(), accs)
	require.NoError(t, err, "the fourth account is never processed")
	assert.Equal(t, []string{"FT001", "FT002", "FT003"}, ledger.Succeeded)
	assert.Equal(t, 1, launcher.Opened())
}

func TestRunner_FatalErrors(t *testing.T) {
	t.Run("browser does not start", func(t *testing.T) {
		launcher := mocks.NewMockLauncher(nil)
		launcher.OpenErr = errors.New("chrome not found")
		rec := notifymocks.NewRecorder()
		runner, err := NewRunner(testConfig(true), launcher, rec, zaptest.NewLogger(t))
		require.NoError(t, err)

		_, err = runner.Execute(context.Background(), accounts(1))
		assert.True(t, authtypes.IsFatal(err))
		assert.Equal(t, []string{"Flattrade Auth: fatal error. Check logs."}, rec.Messages())
	})

	t.Run("host unreachable", func(t *testing.T) {
		host := brokerHost(brokerSurface("broker"))
		host.SetNavigateError(errors.New("net::ERR_NAME_NOT_RESOLVED"))
		launcher := mocks.NewMockLauncher(host)
		rec := notifymocks.NewRecorder()
		runner, err := NewRunner(testConfig(true), launcher, rec, zaptest.NewLogger(t))
		require.NoError(t, err)

		_, err = runner.Execute(context.Background(), accounts(1))
		var fe *authtypes.FatalError
		require.ErrorAs(t, err, &fe)
		assert.Equal(t, "open host", fe.Stage)
		assert.Empty(t, host.Clicks())
		assert.Equal(t, []string{"Flattrade Auth: fatal error. Check logs."}, rec.Messages())
		assert.True(t, launcher.WasShutdownCalled())
	})

	t.Run("broker tile missing", func(t *testing.T) {
		host := hostWithTriggers(brokerSurface("broker"))
		launcher := mocks.NewMockLauncher(host)
		rec := notifymocks.NewRecorder()
		runner, err := NewRunner(testConfig(true), launcher, rec, zaptest.NewLogger(t))
		require.NoError(t, err)

		_, err = runner.Execute(context.Background(), accounts(1))
		var fe *authtypes.FatalError
		require.ErrorAs(t, err, &fe)
		assert.Equal(t, "broker page", fe.Stage)
		assert.Len(t, rec.Messages(), 1)
	})
}

func TestRunner_HostLogin(t *testing.T) {
	cfg := testConfig(true)
	cfg.Host.Phone = "9999999999"
	cfg.Host.Password = "host-pw"
	cfg.Host.Navigation = nil
	cfg.Host.BrokerMarker = ""

	page := brokerSurface("broker")
	page.SetAddresses("https://algotest.in/dashboard")
	host := hostWithTriggers(page)
	hostLogin := browser.Locator{Text: "Login"}
	phone := browser.MustParseLocator("input[name='phone']")
	password := browser.MustParseLocator("input[type='password']")
	host.AddElement(hostLogin, true)
	host.AddElement(phone, true)
	host.AddElement(password, true)

	runner, err := NewRunner(cfg, mocks.NewMockLauncher(host), notifymocks.NewRecorder(), zaptest.NewLogger(t))
	require.NoError(t, err)

	ledger, err := runner.Execute(context.Background(), accounts(1))
	require.NoError(t, err)
	assert.Equal(t, []string{"FT001"}, ledger.Succeeded)
	assert.Equal(t, []mocks.FillCall{
		{Locator: phone, Value: "9999999999"},
		{Locator: password, Value: "host-pw"},
	}, host.Fills())
}

func TestRunner_HostLoginFailureIsNotFatal(t *testing.T) {
	cfg := testConfig(true)
	cfg.Host.Phone = "9999999999"
	cfg.Host.Navigation = nil
	cfg.Host.BrokerMarker = ""

	page := brokerSurface("broker")
	page.SetAddresses("https://algotest.in/dashboard")
	host := hostWithTriggers(page)
	host.RemoveElements(triggerLoc)
	link := browser.MustParseLocator("a:has-text('Login')")
	host.AddElement(link, false)

	runner, err := NewRunner(cfg, mocks.NewMockLauncher(host), notifymocks.NewRecorder(), zaptest.NewLogger(t))
	require.NoError(t, err)

	_, err = runner.Execute(context.Background(), accounts(1))
	assert.NoError(t, err)
}

func TestNewRunner_RejectsBadSelectorOverride(t *testing.T) {
	cfg := testConfig(true)
	cfg.Selectors = map[string][]string{"nope": {"#x"}}
	_, err := NewRunner(cfg, mocks.NewMockLauncher(nil), notifymocks.NewRecorder(), zaptest.NewLogger(t))
	assert.True(t, authtypes.IsConfigError(err))
}
