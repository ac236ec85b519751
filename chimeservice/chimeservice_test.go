package chimeservice

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPlayer struct {
	mu     sync.Mutex
	played []string
	fail   bool
}

func (p *recordingPlayer) Play(sound string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return fmt.Errorf("speaker on fire")
	}
	p.played = append(p.played, sound)
	return nil
}

func (p *recordingPlayer) sounds() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string{}, p.played...)
}

type recordingRinger struct {
	mu    sync.Mutex
	rings []string
}

func (r *recordingRinger) Ring(sound string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rings = append(r.rings, sound)
	return nil
}

func (r *recordingRinger) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rings)
}

func testConfig() ChimeServiceConfig {
	return ChimeServiceConfig{
		CooldownSeconds: 5,
		ChimeSound:      "chime.ogg",
		Devices: map[string]DeviceSound{
			"647166":    {Name: "Backdoor", Sound: "backdoor.ogg"},
			"E80451501": {Name: "Frontdoor", Sound: "frontdoor.ogg"},
		},
	}
}

func newTestDispatcher(cfg ChimeServiceConfig, clock clockwork.Clock) (*Dispatcher, *recordingRinger) {
	ringer := &recordingRinger{}
	d := NewDispatcher(cfg, &recordingPlayer{}, clock)
	d.ringer = ringer
	return d, ringer
}

func TestHandlePress_CooldownWindow(t *testing.T) {
	clock := clockwork.NewFakeClock()
	d, ringer := newTestDispatcher(testConfig(), clock)

	// t=0 rings.
	d.HandlePress("647166")
	d.Wait()
	assert.Equal(t, 1, ringer.count())

	// t=3 is inside the window and gets dropped.
	clock.Advance(3 * time.Second)
	d.HandlePress("647166")
	d.Wait()
	assert.Equal(t, 1, ringer.count())

	// t=6 is past the window and rings again.
	clock.Advance(3 * time.Second)
	d.HandlePress("647166")
	d.Wait()
	assert.Equal(t, 2, ringer.count())
}

func TestHandlePress_GlobalCooldownCouplesDevices(t *testing.T) {
	clock := clockwork.NewFakeClock()
	d, ringer := newTestDispatcher(testConfig(), clock)

	d.HandlePress("647166")
	clock.Advance(1 * time.Second)
	// The frontdoor press lands inside the backdoor's window and is
	// suppressed, the cooldown stamp is shared.
	d.HandlePress("E80451501")
	d.Wait()

	assert.Equal(t, 1, ringer.count())
}

func TestHandlePress_PerDeviceCooldown(t *testing.T) {
	cfg := testConfig()
	cfg.PerDeviceCooldown = true

	clock := clockwork.NewFakeClock()
	d, ringer := newTestDispatcher(cfg, clock)

	d.HandlePress("647166")
	clock.Advance(1 * time.Second)
	d.HandlePress("E80451501")
	d.Wait()

	assert.Equal(t, 2, ringer.count())

	// Each device still honors its own window.
	clock.Advance(1 * time.Second)
	d.HandlePress("647166")
	d.HandlePress("E80451501")
	d.Wait()
	assert.Equal(t, 2, ringer.count())
}

func TestHandlePress_UnknownDeviceNeverRings(t *testing.T) {
	clock := clockwork.NewFakeClock()
	d, ringer := newTestDispatcher(testConfig(), clock)

	d.HandlePress("999999")
	d.Wait()

	assert.Equal(t, 0, ringer.count())
}

func TestHandlePress_StampRecordedBeforeRing(t *testing.T) {
	// A second press arriving while the first ring is still playing must be
	// suppressed even though the ring has not completed.
	clock := clockwork.NewFakeClock()
	d, _ := newTestDispatcher(testConfig(), clock)

	started := make(chan struct{})
	release := make(chan struct{})
	slow := &blockingRinger{started: started, release: release}
	d.ringer = slow

	d.HandlePress("647166")
	<-started

	clock.Advance(2 * time.Second)
	d.HandlePress("647166")

	close(release)
	d.Wait()

	assert.Equal(t, 1, slow.count())
}

type blockingRinger struct {
	mu      sync.Mutex
	rings   int
	started chan struct{}
	release chan struct{}
}

func (r *blockingRinger) Ring(sound string) error {
	r.mu.Lock()
	r.rings++
	r.mu.Unlock()
	close(r.started)
	<-r.release
	return nil
}

func (r *blockingRinger) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rings
}

func TestRing_ChimeBracketedSequence(t *testing.T) {
	player := &recordingPlayer{}
	ringer := &Ringer{Player: player, Chime: "chime.ogg", Pause: 0, Clock: clockwork.NewRealClock()}

	require.NoError(t, ringer.Ring("backdoor.ogg"))

	assert.Equal(t, []string{"chime.ogg", "backdoor.ogg", "chime.ogg", "backdoor.ogg"}, player.sounds())
}

func TestRing_ChimeOmittedSequence(t *testing.T) {
	player := &recordingPlayer{}
	ringer := &Ringer{Player: player, Chime: "", Pause: 0, Clock: clockwork.NewRealClock()}

	require.NoError(t, ringer.Ring("backdoor.ogg"))

	assert.Equal(t, []string{"backdoor.ogg", "backdoor.ogg"}, player.sounds())
}

func TestRing_PlayerFailureSurfaces(t *testing.T) {
	player := &recordingPlayer{fail: true}
	ringer := &Ringer{Player: player, Chime: "chime.ogg", Pause: 0, Clock: clockwork.NewRealClock()}

	require.Error(t, ringer.Ring("backdoor.ogg"))
}

func TestNewDispatcher_Defaults(t *testing.T) {
	d := NewDispatcher(ChimeServiceConfig{}, &recordingPlayer{}, clockwork.NewFakeClock())

	assert.Equal(t, defaultCooldown, d.cooldown)
	assert.False(t, d.perDevice)
}
