package keymgr

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"golang.org/x/crypto/hkdf"

	"github.com/mesh-protocol/meshcop-go/pkg/meshcop"
	"github.com/mesh-protocol/meshcop-go/pkg/notifier"
	"github.com/mesh-protocol/meshcop-go/pkg/settings"
	"github.com/mesh-protocol/meshcop-go/pkg/timer"
)

// Key manager limits and defaults.
const (
	// MaxNetworkKeySize is the largest accepted network key.
	MaxNetworkKeySize = meshcop.NetworkKeySize

	// MinKeyRotationHours is the shortest key rotation period.
	MinKeyRotationHours = meshcop.MinKeyRotationHours

	// MaxKeyRotationHours is the longest key rotation period. It is the
	// largest whole number of hours that fits the 32-bit millisecond timer.
	MaxKeyRotationHours = meshcop.MaxKeyRotationHours

	// DefaultKeyRotationHours is the default key rotation period (28 days).
	DefaultKeyRotationHours = meshcop.DefaultKeyRotationHours

	// DefaultGuardTimeHours is the default key switch guard time.
	DefaultGuardTimeHours = 624

	// FrameCounterStoreAhead is how far ahead of use frame counters are
	// persisted.
	FrameCounterStoreAhead = 1000
)

// keyDerivationLabel is appended to the sequence number when deriving keys.
const keyDerivationLabel = "Thread"

// HKDF parameters for the infrastructure link key.
const (
	trelSalt = "ThreadSequenceMasterKey"
	trelInfo = "ThreadOverInfraKey"
)

// ErrInvalidArgs is returned for out of range parameters.
var ErrInvalidArgs = errors.New("keymgr: invalid arguments")

// CounterKind selects a frame counter.
type CounterKind uint8

const (
	// CounterMLE is the MLE frame counter.
	CounterMLE CounterKind = iota
	// CounterMAC is the MAC frame counter.
	CounterMAC
)

// String returns the counter name.
func (k CounterKind) String() string {
	switch k {
	case CounterMLE:
		return "MLE"
	case CounterMAC:
		return "MAC"
	default:
		return "UNKNOWN"
	}
}

// CounterStore persists the key sequence and frame counters.
type CounterStore interface {
	SaveNetworkInfo(info settings.NetworkInfo) error
	LoadNetworkInfo() (settings.NetworkInfo, error)
}

// Key is a derived working key.
type Key [32]byte

// MLEKey returns the MLE half of the key.
func (k Key) MLEKey() []byte {
	return bytes.Clone(k[:16])
}

// MACKey returns the MAC half of the key.
func (k Key) MACKey() []byte {
	return bytes.Clone(k[16:])
}

// Config configures a KeyManager.
type Config struct {
	// Scheduler drives the rotation timer. Required.
	Scheduler *timer.Scheduler

	// Store persists frame counters. Optional.
	Store CounterStore

	// Notifier receives KeySequenceChanged events. Optional.
	Notifier *notifier.Notifier

	// Logger is the optional logger. If nil, logging is disabled.
	Logger *slog.Logger
}

// KeyManager owns the network key and the key sequence.
type KeyManager struct {
	store    CounterStore
	notifier *notifier.Notifier
	logger   *slog.Logger
	sched    *timer.Scheduler

	networkKey  []byte
	pskc        []byte
	keySequence uint32
	key         Key

	mleFrameCounter uint32
	macFrameCounter uint32
	storedMLE       uint32
	storedMAC       uint32

	rotationTimer *timer.Timer
	rotationHours uint32
	guardHours    uint32
	guardEnabled  bool

	policyFlags uint8
}

// New creates a KeyManager with an all-zero network key at sequence 0.
func New(cfg Config) *KeyManager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	km := &KeyManager{
		store:         cfg.Store,
		notifier:      cfg.Notifier,
		logger:        logger,
		sched:         cfg.Scheduler,
		networkKey:    make([]byte, MaxNetworkKeySize),
		rotationHours: DefaultKeyRotationHours,
		guardHours:    DefaultGuardTimeHours,
		policyFlags:   meshcop.DefaultSecurityPolicyFlags,
	}
	km.rotationTimer = cfg.Scheduler.NewTimer(timer.HandlerFunc(km.handleRotationTimer))
	km.key = km.ComputeKey(0)

	return km
}

// SetNetworkKey sets the network key. An unchanged key is a no-op. Otherwise
// the key sequence restarts at 0 and the frame counters are reset.
func (km *KeyManager) SetNetworkKey(key []byte) error {
	if len(key) > MaxNetworkKeySize {
		return fmt.Errorf("%w: network key length %d exceeds %d", ErrInvalidArgs, len(key), MaxNetworkKeySize)
	}
	if bytes.Equal(key, km.networkKey) {
		return nil
	}

	km.networkKey = bytes.Clone(key)
	km.keySequence = 0
	km.key = km.ComputeKey(0)
	km.resetFrameCounters()

	km.logger.Info("network key changed", "keySequence", km.keySequence)
	km.notifier.Signal(notifier.KeySequenceChanged | notifier.NetworkKeyChanged)
	return nil
}

// NetworkKey returns a copy of the network key.
func (km *KeyManager) NetworkKey() []byte {
	return bytes.Clone(km.networkKey)
}

// SetPSKc sets the pre-shared commissioner key.
func (km *KeyManager) SetPSKc(pskc []byte) {
	km.pskc = bytes.Clone(pskc)
}

// PSKc returns the pre-shared commissioner key.
func (km *KeyManager) PSKc() []byte {
	return bytes.Clone(km.pskc)
}

// CurrentKeySequence returns the key sequence in use.
func (km *KeyManager) CurrentKeySequence() uint32 {
	return km.keySequence
}

// CurrentKey returns the working key for the current sequence.
func (km *KeyManager) CurrentKey() Key {
	return km.key
}

// SetCurrentKeySequence switches to sequence n.
//
// Setting the current sequence is a no-op. Advancing by exactly one while the
// guard is enabled and the rotation timer was armed less than the guard time
// ago is silently ignored. Otherwise the working key is recomputed, the frame
// counters are reset and, when rotation is running, the rotation timer is
// re-armed with the guard enabled.
func (km *KeyManager) SetCurrentKeySequence(n uint32) {
	if n == km.keySequence {
		return
	}

	if n == km.keySequence+1 && km.inGuardWindow() {
		km.logger.Debug("key sequence advance ignored inside guard window",
			"current", km.keySequence, "requested", n)
		return
	}

	old := km.keySequence
	km.keySequence = n
	km.key = km.ComputeKey(n)
	km.resetFrameCounters()

	if km.rotationTimer.IsRunning() {
		km.rotationTimer.Start(timer.HoursToMsec(km.rotationHours))
		km.guardEnabled = true
	}

	km.logger.Info("key sequence changed", "from", old, "to", n)
	km.notifier.Signal(notifier.KeySequenceChanged)
}

// inGuardWindow reports whether an external +1 advance must be dropped.
func (km *KeyManager) inGuardWindow() bool {
	if !km.guardEnabled || !km.rotationTimer.IsRunning() {
		return false
	}
	elapsed := km.sched.Now() - km.rotationTimer.StartTime()
	return elapsed < timer.HoursToMsec(km.guardHours)
}

// ComputeKey derives the working key for sequence from the current network
// key. It has no side effects.
func (km *KeyManager) ComputeKey(sequence uint32) Key {
	mac := hmac.New(sha256.New, km.networkKey)
	_ = binary.Write(mac, binary.BigEndian, sequence)
	mac.Write([]byte(keyDerivationLabel))

	var k Key
	copy(k[:], mac.Sum(nil))
	return k
}

// TemporaryMLEKey returns the MLE key of another sequence, used to accept
// frames secured across a key switch.
func (km *KeyManager) TemporaryMLEKey(sequence uint32) []byte {
	return km.ComputeKey(sequence).MLEKey()
}

// TemporaryMACKey returns the MAC key of another sequence.
func (km *KeyManager) TemporaryMACKey(sequence uint32) []byte {
	return km.ComputeKey(sequence).MACKey()
}

// ComputeTrelKey derives the 16-byte key securing the infrastructure link
// for sequence.
func (km *KeyManager) ComputeTrelKey(sequence uint32) ([]byte, error) {
	salt := binary.BigEndian.AppendUint32(nil, sequence)
	salt = append(salt, trelSalt...)

	r := hkdf.New(sha256.New, km.networkKey, salt, []byte(trelInfo))
	out := make([]byte, 16)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, fmt.Errorf("keymgr: deriving trel key: %w", err)
	}
	return out, nil
}

// FrameCounter returns the next value of the given counter without
// consuming it.
func (km *KeyManager) FrameCounter(kind CounterKind) uint32 {
	if kind == CounterMAC {
		return km.macFrameCounter
	}
	return km.mleFrameCounter
}

// IncrementFrameCounter consumes one value of the given counter and returns
// it. When the counter reaches the persisted watermark the counters are
// stored again, FrameCounterStoreAhead beyond the current value.
func (km *KeyManager) IncrementFrameCounter(kind CounterKind) uint32 {
	var used, stored uint32
	switch kind {
	case CounterMAC:
		used = km.macFrameCounter
		km.macFrameCounter++
		stored = km.storedMAC
	default:
		used = km.mleFrameCounter
		km.mleFrameCounter++
		stored = km.storedMLE
	}

	if used >= stored {
		km.storeCounters()
	}
	return used
}

// RestoreCounters loads the persisted key sequence and frame counters.
// A missing record leaves the manager unchanged.
func (km *KeyManager) RestoreCounters() error {
	if km.store == nil {
		return nil
	}

	info, err := km.store.LoadNetworkInfo()
	if err != nil {
		if settings.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("keymgr: restoring counters: %w", err)
	}

	km.keySequence = info.KeySequence
	km.key = km.ComputeKey(info.KeySequence)
	km.mleFrameCounter = info.MLEFrameCounter
	km.macFrameCounter = info.MACFrameCounter
	km.storedMLE = info.MLEFrameCounter
	km.storedMAC = info.MACFrameCounter

	km.logger.Info("restored key material",
		"keySequence", km.keySequence, "mleFrameCounter", km.mleFrameCounter, "macFrameCounter", km.macFrameCounter)
	return nil
}

func (km *KeyManager) resetFrameCounters() {
	km.mleFrameCounter = 0
	km.macFrameCounter = 0
	km.storeCounters()
}

func (km *KeyManager) storeCounters() {
	km.storedMLE = km.mleFrameCounter + FrameCounterStoreAhead
	km.storedMAC = km.macFrameCounter + FrameCounterStoreAhead

	if km.store == nil {
		return
	}

	err := km.store.SaveNetworkInfo(settings.NetworkInfo{
		KeySequence:     km.keySequence,
		MLEFrameCounter: km.storedMLE,
		MACFrameCounter: km.storedMAC,
	})
	if err != nil {
		km.logger.Warn("failed to store frame counters", "error", err)
	}
}

// SetKeyRotation sets the rotation period in hours. It takes effect the next
// time the rotation timer is armed.
func (km *KeyManager) SetKeyRotation(hours uint32) error {
	if hours < MinKeyRotationHours || hours > MaxKeyRotationHours {
		return fmt.Errorf("%w: key rotation %d h outside [%d, %d]",
			ErrInvalidArgs, hours, MinKeyRotationHours, MaxKeyRotationHours)
	}
	km.rotationHours = hours
	return nil
}

// KeyRotation returns the rotation period in hours.
func (km *KeyManager) KeyRotation() uint32 {
	return km.rotationHours
}

// SetGuardTime sets the key switch guard time in hours.
func (km *KeyManager) SetGuardTime(hours uint32) error {
	if hours > MaxKeyRotationHours {
		return fmt.Errorf("%w: guard time %d h exceeds %d", ErrInvalidArgs, hours, MaxKeyRotationHours)
	}
	km.guardHours = hours
	return nil
}

// GuardTime returns the key switch guard time in hours.
func (km *KeyManager) GuardTime() uint32 {
	return km.guardHours
}

// IsGuardEnabled reports whether the guard is currently enabled.
func (km *KeyManager) IsGuardEnabled() bool {
	return km.guardEnabled
}

// IsRotating reports whether the rotation timer is armed.
func (km *KeyManager) IsRotating() bool {
	return km.rotationTimer.IsRunning()
}

// SetSecurityPolicy applies the rotation time and flags of p.
func (km *KeyManager) SetSecurityPolicy(p meshcop.SecurityPolicy) error {
	if err := km.SetKeyRotation(uint32(p.RotationHours)); err != nil {
		return err
	}
	if km.policyFlags != p.Flags {
		km.policyFlags = p.Flags
		km.notifier.Signal(notifier.SecurityPolicyChanged)
	}
	return nil
}

// SecurityPolicy returns the current policy.
func (km *KeyManager) SecurityPolicy() meshcop.SecurityPolicy {
	return meshcop.SecurityPolicy{RotationHours: uint16(km.rotationHours), Flags: km.policyFlags}
}

// Start arms the rotation timer with the guard disabled.
func (km *KeyManager) Start() {
	km.guardEnabled = false
	km.rotationTimer.Start(timer.HoursToMsec(km.rotationHours))
}

// Stop disarms the rotation timer.
func (km *KeyManager) Stop() {
	km.rotationTimer.Stop()
}

func (km *KeyManager) handleRotationTimer() {
	km.guardEnabled = false
	km.rotationTimer.Start(timer.HoursToMsec(km.rotationHours))
	km.SetCurrentKeySequence(km.keySequence + 1)
}
