package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/calcforest/calcforest/internal/auth"
	"github.com/calcforest/calcforest/internal/logging"
	"github.com/calcforest/calcforest/internal/store"
	"github.com/calcforest/calcforest/internal/testutil"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// countingStore records how many times each read is issued.
type countingStore struct {
	store.CalculationStore

	mu    sync.Mutex
	lists int
	gets  int
}

func (c *countingStore) ListCalculations(ctx context.Context) ([]store.CalculationRecord, error) {
	c.mu.Lock()
	c.lists++
	c.mu.Unlock()
	return c.CalculationStore.ListCalculations(ctx)
}

func (c *countingStore) GetCalculation(ctx context.Context, id string) (store.CalculationRecord, error) {
	c.mu.Lock()
	c.gets++
	c.mu.Unlock()
	return c.CalculationStore.GetCalculation(ctx, id)
}

type recordedEvent struct {
	eventType string
	data      any
}

type fakeBroadcaster struct {
	events []recordedEvent
}

func (f *fakeBroadcaster) Broadcast(eventType string, data any) {
	f.events = append(f.events, recordedEvent{eventType: eventType, data: data})
}

// stepClock returns a strictly increasing time on every call.
func stepClock() func() time.Time {
	var mu sync.Mutex
	now := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
}

type fixture struct {
	users        *UserService
	calculations *CalculationService
	store        *countingStore
	broadcaster  *fakeBroadcaster
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	gs := store.NewGorm(testutil.NewDB(t))
	tokens, err := auth.NewTokens("test-secret", time.Hour)
	require.NoError(t, err)

	log := logging.Discard()
	counting := &countingStore{CalculationStore: gs}
	broadcaster := &fakeBroadcaster{}

	return &fixture{
		users:        NewUserService(gs, auth.NewHasher(bcrypt.MinCost), tokens, log, nil),
		calculations: NewCalculationService(counting, log, nil, WithClock(stepClock()), WithBroadcaster(broadcaster)),
		store:        counting,
		broadcaster:  broadcaster,
	}
}

func (f *fixture) register(t *testing.T, username string) Actor {
	t.Helper()
	res, err := f.users.Register(context.Background(), username, "password1")
	require.NoError(t, err)
	return Actor{UserID: res.User.ID, Username: res.User.Username}
}

func float(v float64) *float64 { return &v }
