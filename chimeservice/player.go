package chimeservice

import (
	"fmt"
	"os/exec"

	"github.com/rs/zerolog/log"
)

// CommandPlayer shells out to an external player binary (paplay, ffplay,
// ogg123...) and blocks until it exits. Playback itself stays outside this
// program, any player that takes a file argument will do.
type CommandPlayer struct {
	Command string
	Args    []string
}

func (p *CommandPlayer) Play(sound string) error {
	if p.Command == "" {
		return fmt.Errorf("no player command configured")
	}

	log.Info().Msgf("Playing sound %s", sound)

	args := append(append([]string{}, p.Args...), sound)
	cmd := exec.Command(p.Command, args...)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("player %s failed for %s: %w", p.Command, sound, err)
	}
	return nil
}
