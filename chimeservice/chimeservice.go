package chimeservice

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// SoundPlayer plays one sound file and blocks until playback completes.
type SoundPlayer interface {
	Play(sound string) error
}

// bellRinger runs the full ring sequence for one device sound.
type bellRinger interface {
	Ring(sound string) error
}

// Ringer performs the audio sequence for an accepted doorbell press: chime,
// device sound, a short pause, then the same pair once more. With no chime
// configured the device sound alone is played twice.
type Ringer struct {
	Player SoundPlayer
	Chime  string
	Pause  time.Duration
	Clock  clockwork.Clock
}

func (r *Ringer) Ring(sound string) error {
	for i := 0; i < 2; i++ {
		if i == 1 {
			r.Clock.Sleep(r.Pause)
		}
		if r.Chime != "" {
			if err := r.Player.Play(r.Chime); err != nil {
				return err
			}
		}
		if err := r.Player.Play(sound); err != nil {
			return err
		}
	}
	return nil
}

// Dispatcher filters inbound doorbell presses through the device registry
// and the cooldown window, and hands accepted presses to the ringer. The
// cooldown is global across devices unless PerDeviceCooldown is set; the
// global stamp means a front-door ring suppresses a back-door ring inside
// the same window, which matches the historical behavior.
type Dispatcher struct {
	registry  map[string]DeviceSound
	cooldown  time.Duration
	perDevice bool
	clock     clockwork.Clock
	ringer    bellRinger

	mu       sync.Mutex
	last     time.Time
	lastByID map[string]time.Time
	wg       sync.WaitGroup
}

// NewDispatcher wires a dispatcher from config. The clock is injectable so
// the cooldown window can be tested without sleeping.
func NewDispatcher(cfg ChimeServiceConfig, player SoundPlayer, clock clockwork.Clock) *Dispatcher {
	cooldown := defaultCooldown
	if cfg.CooldownSeconds > 0 {
		cooldown = time.Duration(cfg.CooldownSeconds) * time.Second
	}

	pause := defaultPause
	if cfg.PauseMillis > 0 {
		pause = time.Duration(cfg.PauseMillis) * time.Millisecond
	}

	return &Dispatcher{
		registry:  cfg.Devices,
		cooldown:  cooldown,
		perDevice: cfg.PerDeviceCooldown,
		clock:     clock,
		ringer: &Ringer{
			Player: player,
			Chime:  cfg.ChimeSound,
			Pause:  pause,
			Clock:  clock,
		},
		lastByID: make(map[string]time.Time),
	}
}

// HandlePress is invoked once per decoded doorbell press. Unknown serials
// are dropped quietly, presses inside the cooldown window are logged and
// dropped, and the accepted rest ring in their own goroutine so a slow
// chime does not hold up the next event.
func (d *Dispatcher) HandlePress(serial string) {
	device, ok := d.registry[serial]
	if !ok {
		log.Debug().Msgf("Ignoring press from unregistered device %s", serial)
		return
	}

	d.mu.Lock()
	now := d.clock.Now()
	last := d.last
	if d.perDevice {
		last = d.lastByID[serial]
	}
	if !last.IsZero() && now.Sub(last) <= d.cooldown {
		d.mu.Unlock()
		log.Info().Msgf("Cooldown skip for %s (%s), last ring %s ago", serial, device.Name, now.Sub(last))
		return
	}
	// Stamp before launching the ring, so a chime that outlasts the window
	// cannot be retriggered by its own duration.
	if d.perDevice {
		d.lastByID[serial] = now
	} else {
		d.last = now
	}
	d.mu.Unlock()

	log.Info().Msgf("Doorbell pressed: %s (%s)", device.Name, serial)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.ringer.Ring(device.Sound); err != nil {
			log.Error().Msgf("Ring failed for %s: %v", device.Name, err)
		}
	}()
}

// Wait blocks until all in-flight ring actions have finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
