// ezvizctl is a one-shot command line tool for poking at the camera cloud
// without running the chime daemon: inspect devices, flip switches, move a
// camera, set the defence mode.
//
//	ezvizctl -account me@example.com devices status
//	ezvizctl camera D12345 move up
//	ezvizctl camera D12345 switch audio 1
//	ezvizctl defence away
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"doorchime/ezvizservice"
)

const usage = `usage: ezvizctl [flags] <command> [args]

commands:
  devices <device|status|switch|connection>
  defence <home|away|sleep>
  camera <serial> status
  camera <serial> move <up|down|left|right> [speed]
  camera <serial> switch <audio|ir|state|privacy|sleep|follow_move> <0|1>
  camera <serial> alarm <soft|intense|silent>
  camera <serial> sensitivity <level> [algorithm]
`

func main() {
	_ = godotenv.Load()

	var (
		account  = flag.String("account", os.Getenv("EZVIZ_ACCOUNT"), "Ezviz account (or set EZVIZ_ACCOUNT env)")
		password = flag.String("password", os.Getenv("EZVIZ_PASSWORD"), "Ezviz password (or set EZVIZ_PASSWORD env)")
		region   = flag.String("region", "", "API region host, defaults to the EU gateway")
		debug    = flag.Bool("debug", false, "Debug logging")
	)
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	zerolog.SetGlobalLevel(zerolog.WarnLevel)
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	if *account == "" || *password == "" {
		log.Fatal().Msg("Account and password required (-account/-password or EZVIZ_ACCOUNT/EZVIZ_PASSWORD env)")
	}
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	client := ezvizservice.NewClient(ezvizservice.ClientConfig{
		Account:  *account,
		Password: *password,
		Region:   *region,
	})
	if _, err := client.Login(); err != nil {
		log.Fatal().Msgf("Login failed: %v", err)
	}
	defer client.Close()

	if err := dispatch(client, flag.Args()); err != nil {
		log.Fatal().Msgf("Command failed: %v", err)
	}
}

func dispatch(client *ezvizservice.Client, args []string) error {
	switch args[0] {
	case "devices":
		if len(args) < 2 {
			return fmt.Errorf("devices needs an action")
		}
		return runDevices(client, args[1])
	case "defence":
		if len(args) < 2 {
			return fmt.Errorf("defence needs a mode")
		}
		return runDefence(client, args[1])
	case "camera":
		if len(args) < 3 {
			return fmt.Errorf("camera needs a serial and an action")
		}
		return runCamera(client, args[1], args[2], args[3:])
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func runDevices(client *ezvizservice.Client, action string) error {
	var out any
	var err error

	switch action {
	case "device":
		out, err = client.GetDevices()
	case "status":
		out, err = client.GetStatuses()
	case "switch":
		out, err = client.GetSwitches()
	case "connection":
		out, err = client.GetConnections()
	default:
		return fmt.Errorf("unknown devices action %q", action)
	}
	if err != nil {
		return err
	}
	return printJSON(out)
}

func runDefence(client *ezvizservice.Client, mode string) error {
	modes := map[string]int{
		"home":  ezvizservice.DefenceModeHome,
		"away":  ezvizservice.DefenceModeAway,
		"sleep": ezvizservice.DefenceModeSleep,
	}
	value, ok := modes[mode]
	if !ok {
		return fmt.Errorf("unknown defence mode %q", mode)
	}
	return client.SetDefenceMode(value)
}

func runCamera(client *ezvizservice.Client, serial, action string, rest []string) error {
	camera := ezvizservice.NewCamera(client, serial)

	switch action {
	case "status":
		status, err := camera.Status()
		if err != nil {
			return err
		}
		return printJSON(status)

	case "move":
		if len(rest) < 1 {
			return fmt.Errorf("move needs a direction")
		}
		speed := 5
		if len(rest) > 1 {
			parsed, err := strconv.Atoi(rest[1])
			if err != nil {
				return fmt.Errorf("bad speed %q: %w", rest[1], err)
			}
			speed = parsed
		}
		return camera.Move(rest[0], speed)

	case "switch":
		if len(rest) < 2 {
			return fmt.Errorf("switch needs a name and 0/1")
		}
		enable, err := strconv.Atoi(rest[1])
		if err != nil || (enable != 0 && enable != 1) {
			return fmt.Errorf("enable must be 0 or 1, got %q", rest[1])
		}
		switch rest[0] {
		case "audio":
			return camera.SwitchAudio(enable)
		case "ir":
			return camera.SwitchIrLed(enable)
		case "state":
			return camera.SwitchStateLed(enable)
		case "privacy":
			return camera.SwitchPrivacyMode(enable)
		case "sleep":
			return camera.SwitchSleepMode(enable)
		case "follow_move":
			return camera.SwitchFollowMove(enable)
		default:
			return fmt.Errorf("unknown switch %q", rest[0])
		}

	case "alarm":
		if len(rest) < 1 {
			return fmt.Errorf("alarm needs a sound mode")
		}
		sounds := map[string]int{
			"soft":    ezvizservice.SoundSoft,
			"intense": ezvizservice.SoundIntense,
			"silent":  ezvizservice.SoundSilent,
		}
		sound, ok := sounds[rest[0]]
		if !ok {
			return fmt.Errorf("unknown sound mode %q", rest[0])
		}
		return camera.AlarmSound(sound)

	case "sensitivity":
		if len(rest) < 1 {
			return fmt.Errorf("sensitivity needs a level")
		}
		level, err := strconv.Atoi(rest[0])
		if err != nil {
			return fmt.Errorf("bad level %q: %w", rest[0], err)
		}
		algType := 0
		if len(rest) > 1 {
			algType, err = strconv.Atoi(rest[1])
			if err != nil {
				return fmt.Errorf("bad algorithm %q: %w", rest[1], err)
			}
		}
		result, err := camera.DetectionSensitivity(level, algType)
		if err != nil {
			return err
		}
		return printJSON(result)

	default:
		return fmt.Errorf("unknown camera action %q", action)
	}
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
