package keymgr

import (
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-protocol/meshcop-go/pkg/keymgr/mocks"
	"github.com/mesh-protocol/meshcop-go/pkg/meshcop"
	"github.com/mesh-protocol/meshcop-go/pkg/notifier"
	"github.com/mesh-protocol/meshcop-go/pkg/settings"
	"github.com/mesh-protocol/meshcop-go/pkg/timer"
)

var testNetworkKey = []byte{
	0x00, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77,
	0x88, 0x99, 0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff,
}

type fixture struct {
	km       *KeyManager
	platform *timer.ManualPlatform
	events   []notifier.Flags
}

func newFixture(t *testing.T, store CounterStore) *fixture {
	t.Helper()
	return newFixtureAt(t, store, 0)
}

// newFixtureAt starts the manual clock at now.
func newFixtureAt(t *testing.T, store CounterStore, now uint32) *fixture {
	t.Helper()

	f := &fixture{platform: timer.NewManualPlatform(now)}
	n := notifier.New()
	n.Subscribe(func(fl notifier.Flags) { f.events = append(f.events, fl) })

	f.km = New(Config{
		Scheduler: timer.NewScheduler(f.platform, f.platform),
		Store:     store,
		Notifier:  n,
	})
	return f
}

func TestSetNetworkKeyZeroThenAdvance(t *testing.T) {
	f := newFixture(t, nil)
	km := f.km

	require.NoError(t, km.SetNetworkKey(make([]byte, 16)))
	assert.Equal(t, uint32(0), km.CurrentKeySequence())

	km.IncrementFrameCounter(CounterMLE)
	km.IncrementFrameCounter(CounterMAC)

	km.SetCurrentKeySequence(1)

	assert.Equal(t, uint32(1), km.CurrentKeySequence())
	assert.Equal(t, uint32(0), km.FrameCounter(CounterMLE))
	assert.Equal(t, uint32(0), km.FrameCounter(CounterMAC))
	assert.Equal(t, km.ComputeKey(1), km.CurrentKey())
}

func TestSetNetworkKey(t *testing.T) {
	t.Run("too long", func(t *testing.T) {
		f := newFixture(t, nil)
		err := f.km.SetNetworkKey(make([]byte, 17))
		assert.True(t, errors.Is(err, ErrInvalidArgs))
		assert.Empty(t, f.events)
	})

	t.Run("unchanged is a no-op", func(t *testing.T) {
		f := newFixture(t, nil)
		require.NoError(t, f.km.SetNetworkKey(testNetworkKey))
		f.km.SetCurrentKeySequence(9)
		f.events = nil

		require.NoError(t, f.km.SetNetworkKey(testNetworkKey))
		assert.Equal(t, uint32(9), f.km.CurrentKeySequence())
		assert.Empty(t, f.events)
	})

	t.Run("new key resets sequence", func(t *testing.T) {
		f := newFixture(t, nil)
		f.km.SetCurrentKeySequence(9)
		f.events = nil

		require.NoError(t, f.km.SetNetworkKey(testNetworkKey))
		assert.Equal(t, uint32(0), f.km.CurrentKeySequence())
		assert.Equal(t, testNetworkKey, f.km.NetworkKey())
		require.Len(t, f.events, 1)
		assert.True(t, f.events[0].Has(notifier.KeySequenceChanged))
	})
}

func TestComputeKeyIsPathIndependent(t *testing.T) {
	a := newFixture(t, nil).km
	b := newFixture(t, nil).km
	require.NoError(t, a.SetNetworkKey(testNetworkKey))
	require.NoError(t, b.SetNetworkKey(testNetworkKey))

	// a walks one step at a time, b jumps straight there.
	for seq := uint32(1); seq <= 5; seq++ {
		a.SetCurrentKeySequence(seq)
	}
	b.SetCurrentKeySequence(5)

	assert.Equal(t, a.CurrentKey(), b.CurrentKey())
	assert.Equal(t, a.ComputeKey(5), a.ComputeKey(5))
	assert.NotEqual(t, a.ComputeKey(5), a.ComputeKey(6))

	// Independent HMAC-SHA256(key, BE32(seq) || "Thread").
	mac := hmac.New(sha256.New, testNetworkKey)
	mac.Write([]byte{0, 0, 0, 5})
	mac.Write([]byte("Thread"))
	want := mac.Sum(nil)

	key := a.ComputeKey(5)
	assert.Equal(t, want[:16], key.MLEKey())
	assert.Equal(t, want[16:], key.MACKey())
	assert.Equal(t, want[:16], a.TemporaryMLEKey(5))
	assert.Equal(t, want[16:], a.TemporaryMACKey(5))
}

func TestSetCurrentKeySequenceSameIsNoop(t *testing.T) {
	f := newFixture(t, nil)
	f.km.SetCurrentKeySequence(0)
	assert.Empty(t, f.events)
}

func TestGuardWindow(t *testing.T) {
	const guardHours = 10
	guard := timer.HoursToMsec(guardHours)

	tests := []struct {
		name  string
		start uint32
	}{
		{"from zero", 0},
		{"across tick wraparound", ^uint32(0) - 1000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixtureAt(t, nil, tt.start)
			km := f.km
			require.NoError(t, km.SetKeyRotation(100))
			require.NoError(t, km.SetGuardTime(guardHours))

			km.Start()
			assert.False(t, km.IsGuardEnabled())

			// A non +1 change re-arms the rotation timer and enables the guard.
			km.SetCurrentKeySequence(5)
			require.True(t, km.IsGuardEnabled())
			armedAt := f.platform.Now()

			for _, at := range []uint32{0, 1, 5000, guard / 2, guard - 1} {
				f.platform.Set(armedAt + at)
				km.SetCurrentKeySequence(6)
				assert.Equal(t, uint32(5), km.CurrentKeySequence(), "advance at +%d ms must be ignored", at)
			}

			f.platform.Set(armedAt + guard)
			km.SetCurrentKeySequence(6)
			assert.Equal(t, uint32(6), km.CurrentKeySequence())

			// Jumps other than +1 are not guarded.
			f.platform.Set(armedAt + guard + 1)
			km.SetCurrentKeySequence(8)
			assert.Equal(t, uint32(8), km.CurrentKeySequence())

			// The jump re-armed the timer, so the guard applies again.
			km.SetCurrentKeySequence(9)
			assert.Equal(t, uint32(8), km.CurrentKeySequence())

			f.platform.Set(armedAt + guard + 1 + guard)
			km.SetCurrentKeySequence(9)
			assert.Equal(t, uint32(9), km.CurrentKeySequence())
		})
	}
}

func TestGuardDisabledWhenRotationStopped(t *testing.T) {
	f := newFixture(t, nil)
	km := f.km

	km.Start()
	km.SetCurrentKeySequence(3)
	require.True(t, km.IsGuardEnabled())

	km.Stop()
	km.SetCurrentKeySequence(4)
	assert.Equal(t, uint32(4), km.CurrentKeySequence())
}

func TestRotationAdvancesPeriodically(t *testing.T) {
	f := newFixture(t, nil)
	km := f.km
	require.NoError(t, km.SetKeyRotation(1))

	km.Start()
	f.platform.Advance(timer.HoursToMsec(1) - 1)
	assert.Equal(t, uint32(0), km.CurrentKeySequence())

	f.platform.Advance(1)
	assert.Equal(t, uint32(1), km.CurrentKeySequence())
	assert.True(t, km.IsRotating())
	assert.True(t, km.IsGuardEnabled())

	f.platform.Advance(timer.HoursToMsec(1))
	assert.Equal(t, uint32(2), km.CurrentKeySequence())

	km.Stop()
	f.platform.Advance(timer.HoursToMsec(5))
	assert.Equal(t, uint32(2), km.CurrentKeySequence())
}

func TestSetKeyRotationRange(t *testing.T) {
	km := newFixture(t, nil).km

	tests := []struct {
		hours   uint32
		wantErr bool
	}{
		{0, true},
		{1, false},
		{672, false},
		{1193, false},
		{1194, true},
	}

	for _, tt := range tests {
		err := km.SetKeyRotation(tt.hours)
		if tt.wantErr {
			assert.True(t, errors.Is(err, ErrInvalidArgs), "hours=%d", tt.hours)
		} else {
			assert.NoError(t, err, "hours=%d", tt.hours)
			assert.Equal(t, tt.hours, km.KeyRotation())
		}
	}

	assert.Error(t, km.SetGuardTime(1194))
}

func TestSetSecurityPolicy(t *testing.T) {
	f := newFixture(t, nil)

	p := meshcop.SecurityPolicy{RotationHours: 24, Flags: meshcop.PolicyRoutersEnabled}
	require.NoError(t, f.km.SetSecurityPolicy(p))

	assert.Equal(t, p, f.km.SecurityPolicy())
	require.Len(t, f.events, 1)
	assert.True(t, f.events[0].Has(notifier.SecurityPolicyChanged))

	err := f.km.SetSecurityPolicy(meshcop.SecurityPolicy{RotationHours: 0})
	assert.True(t, errors.Is(err, ErrInvalidArgs))
	assert.Equal(t, p, f.km.SecurityPolicy())
}

func TestFrameCounterPersistence(t *testing.T) {
	store := mocks.NewMockCounterStore(t)
	f := newFixture(t, store)

	store.EXPECT().SaveNetworkInfo(settings.NetworkInfo{
		MLEFrameCounter: 1 + FrameCounterStoreAhead,
		MACFrameCounter: FrameCounterStoreAhead,
	}).Return(nil).Once()

	assert.Equal(t, uint32(0), f.km.IncrementFrameCounter(CounterMLE))

	for i := uint32(1); i <= FrameCounterStoreAhead; i++ {
		assert.Equal(t, i, f.km.IncrementFrameCounter(CounterMLE))
	}

	store.EXPECT().SaveNetworkInfo(settings.NetworkInfo{
		MLEFrameCounter: 1002 + FrameCounterStoreAhead,
		MACFrameCounter: FrameCounterStoreAhead,
	}).Return(nil).Once()

	assert.Equal(t, uint32(1001), f.km.IncrementFrameCounter(CounterMLE))
}

func TestSequenceChangePersistsCounters(t *testing.T) {
	store := mocks.NewMockCounterStore(t)
	f := newFixture(t, store)

	store.EXPECT().SaveNetworkInfo(settings.NetworkInfo{
		KeySequence:     3,
		MLEFrameCounter: FrameCounterStoreAhead,
		MACFrameCounter: FrameCounterStoreAhead,
	}).Return(nil).Once()

	f.km.SetCurrentKeySequence(3)
}

func TestRestoreCounters(t *testing.T) {
	store := mocks.NewMockCounterStore(t)
	f := newFixture(t, store)

	store.EXPECT().LoadNetworkInfo().Return(settings.NetworkInfo{
		KeySequence:     3,
		MLEFrameCounter: 5000,
		MACFrameCounter: 7000,
	}, nil).Once()

	require.NoError(t, f.km.RestoreCounters())
	assert.Equal(t, uint32(3), f.km.CurrentKeySequence())
	assert.Equal(t, f.km.ComputeKey(3), f.km.CurrentKey())
	assert.Equal(t, uint32(5000), f.km.FrameCounter(CounterMLE))

	// The restored value is the watermark, so the first use stores again.
	store.EXPECT().SaveNetworkInfo(settings.NetworkInfo{
		KeySequence:     3,
		MLEFrameCounter: 5001 + FrameCounterStoreAhead,
		MACFrameCounter: 7000 + FrameCounterStoreAhead,
	}).Return(nil).Once()

	assert.Equal(t, uint32(5000), f.km.IncrementFrameCounter(CounterMLE))
}

func TestRestoreCountersNotFound(t *testing.T) {
	store := mocks.NewMockCounterStore(t)
	f := newFixture(t, store)

	store.EXPECT().LoadNetworkInfo().Return(settings.NetworkInfo{}, settings.ErrNotFound).Once()

	require.NoError(t, f.km.RestoreCounters())
	assert.Equal(t, uint32(0), f.km.CurrentKeySequence())
}

func TestComputeTrelKey(t *testing.T) {
	km := newFixture(t, nil).km
	require.NoError(t, km.SetNetworkKey(testNetworkKey))

	k1, err := km.ComputeTrelKey(1)
	require.NoError(t, err)
	assert.Len(t, k1, 16)

	again, err := km.ComputeTrelKey(1)
	require.NoError(t, err)
	assert.Equal(t, k1, again)

	k2, err := km.ComputeTrelKey(2)
	require.NoError(t, err)
	assert.NotEqual(t, k1, k2)
}
