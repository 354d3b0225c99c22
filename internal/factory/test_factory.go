package factory

import (
	"io"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/config"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/dependencies/mocks"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/realtime"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/storage/memory"
)

// TestApp extends App with test-specific helpers
type TestApp struct {
	*App

	// Mocks for test control
	MockClock  *mocks.MockClock
	MockRandom *mocks.MockRandom
}

// TestConfig returns the default configuration tuned for fast tests
func TestConfig() config.Config {
	cfg := config.Default()
	cfg.Identity.GuestSecret = "test-secret"
	cfg.Identity.BcryptCost = bcrypt.MinCost
	cfg.Rooms.BcryptCost = bcrypt.MinCost
	cfg.Identity.OnlineWindow = cfg.Presence.DisconnectAfter
	cfg.Maintenance.Enabled = false
	return cfg
}

// NewTestApp creates an App configured for testing with mocked dependencies
func NewTestApp() *TestApp {
	return NewTestAppWithConfig(TestConfig())
}

// NewTestAppWithConfig creates a test App with the given configuration
func NewTestAppWithConfig(cfg config.Config) *TestApp {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.New()
	mockClock := mocks.NewMockClock(time.Date(2024, 10, 31, 20, 0, 0, 0, time.UTC))
	mockRandom := mocks.NewMockRandom()
	hubs := realtime.NewHubManager(logger)

	app, err := newWithDependencies(store, mockClock, mockRandom, hubs, realtime.NewLocalBroker(hubs, logger), cfg, logger)
	if err != nil {
		panic(err)
	}

	return &TestApp{
		App:        app,
		MockClock:  mockClock,
		MockRandom: mockRandom,
	}
}
