package internal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/copyleftdev/brokerlogin/internal/authtypes"
	"github.com/copyleftdev/brokerlogin/internal/browser"
	"github.com/copyleftdev/brokerlogin/internal/browser/mocks"
	"github.com/copyleftdev/brokerlogin/internal/config"
	"github.com/copyleftdev/brokerlogin/internal/engine"
	"github.com/copyleftdev/brokerlogin/internal/notify"
	"github.com/copyleftdev/brokerlogin/internal/runs"
	"github.com/copyleftdev/brokerlogin/internal/server"
)

// telegramStub records sendMessage texts.
type telegramStub struct {
	mu    sync.Mutex
	texts []string
}

func (s *telegramStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Text string `json:"text"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	s.mu.Lock()
	s.texts = append(s.texts, body.Text)
	s.mu.Unlock()
	w.Write([]byte(`{"ok":true}`))
}

func (s *telegramStub) Texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.texts...)
}

// This test drives a run through the HTTP API, the run manager, the engine
// and the Telegram notifier, with only the browser mocked.
func TestBrokerLoginWorkflow(t *testing.T) {
	logger := zaptest.NewLogger(t)

	tg := &telegramStub{}
	tgServer := httptest.NewServer(tg)
	defer tgServer.Close()

	cfg := &config.Config{
		Host: config.HostConfig{URL: "https://algotest.in", BrokerMarker: "Flattrade"},
		Batch: config.BatchConfig{
			MaxAccounts:       3,
			TimedOutIsSuccess: false,
			CompletionMarkers: []string{"algotest", "dashboard"},
			Title:             "Flattrade Auth",
		},
		Timing: config.TimingConfig{PollInterval: time.Millisecond, PollAttempts: 5},
		Notify: config.NotifyConfig{
			Telegram: config.TelegramConfig{BotToken: "1:T", ChatID: "7", BaseURL: tgServer.URL},
			Timeout:  time.Second,
		},
		Accounts: []authtypes.Account{
			{UserID: "FT001", Password: "a"},
			{UserID: "FT002", Password: "b", TOTPSecret: "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ"},
		},
	}
	require.NoError(t, cfg.Validate())

	trigger := browser.MustParseLocator("button:has-text('Login')")
	user := browser.MustParseLocator("input[name='user_id']")
	pass := browser.MustParseLocator("input[type='password']")
	otp := browser.MustParseLocator("input[placeholder*='TOTP']")

	ok := mocks.NewMockSurface("broker-ok")
	ok.AddElement(user, true)
	ok.AddElement(pass, true)
	ok.SetAddresses("https://auth.flattrade.in/", "https://algotest.in/dashboard")

	stuck := mocks.NewMockSurface("broker-stuck")
	stuck.AddElement(user, true)
	stuck.AddElement(pass, true)
	stuck.AddElement(otp, true)
	stuck.SetAddresses("https://auth.flattrade.in/")

	host := mocks.NewMockSurface("host")
	host.AddElement(browser.Locator{Text: "Flattrade"}, true)
	host.AddElement(trigger, true)
	host.AddElement(trigger, true)
	host.OpenOnClick(trigger, 0, ok)
	host.OpenOnClick(trigger, 1, stuck)
	launcher := mocks.NewMockLauncher(host)

	notifier := notify.New(cfg.Notify, logger)
	executor := runs.ExecutorFunc(func(ctx context.Context, accounts []authtypes.Account) (authtypes.RunLedger, error) {
		runner, err := engine.NewRunner(cfg, launcher, notifier, logger)
		if err != nil {
			return authtypes.NewRunLedger(), err
		}
		return runner.Execute(ctx, accounts)
	})
	manager := runs.NewManager(executor, cfg.Accounts, time.Minute, logger)
	defer manager.Shutdown(context.Background())

	api := httptest.NewServer(server.NewRouter(cfg.Server, manager, logger))
	defer api.Close()

	resp, err := http.Post(api.URL+"/api/v1/runs", "application/json", nil)
	require.NoError(t, err)
	var submitted server.SubmitRunResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&submitted))
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var run authtypes.Run
	require.Eventually(t, func() bool {
		resp, err := http.Get(api.URL + "/api/v1/runs/" + submitted.RunID)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		if err := json.NewDecoder(resp.Body).Decode(&run); err != nil {
			return false
		}
		return run.Status == authtypes.RunCompleted
	}, 5*time.Second, 10*time.Millisecond)

	require.NotNil(t, run.Ledger)
	assert.Equal(t, []string{"FT001"}, run.Ledger.Succeeded)
	assert.Equal(t, []string{"FT002"}, run.Ledger.Failed)
	require.Len(t, run.Ledger.Outcomes, 2)
	assert.Equal(t, authtypes.OutcomeTimedOut, run.Ledger.Outcomes[1].Status)

	fills := stuck.Fills()
	require.Len(t, fills, 3)
	assert.Regexp(t, `^\d{6}$`, fills[2].Value)
	assert.Equal(t, 1, ok.CloseCalls())
	assert.Equal(t, 1, stuck.CloseCalls())
	assert.Zero(t, host.CloseCalls())
	assert.True(t, launcher.WasShutdownCalled())

	assert.Equal(t, []string{
		"Flattrade Auth Completed. Success: 1, Fail: 1\nSucceeded: [FT001]\nFailed: [FT002]",
	}, tg.Texts())
}
