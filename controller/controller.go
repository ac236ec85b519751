package controller

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"doorchime/chimeservice"
	"doorchime/ezvizservice"
	"doorchime/pushservice"
)

// getSecrets overlays account credentials from the environment so the
// password never has to live in the config file.
func getSecrets(config *DoorchimeConfig) {
	if account := os.Getenv("EZVIZ_ACCOUNT"); account != "" {
		config.Ezviz.Account = account
	}
	if password := os.Getenv("EZVIZ_PASSWORD"); password != "" {
		config.Ezviz.Password = password
	}
	if config.Ezviz.Password == "" {
		log.Warn().Msg("No Ezviz password set, cloud login will not be possible")
	}
}

func buildDoorchime() (*DoorchimeConfig, error) {
	configFile, err := os.Open(os.Getenv("DOORCHIME_CONFIG_FILE"))
	if err != nil {
		return nil, fmt.Errorf("config file not found, check location set at environment variable DOORCHIME_CONFIG_FILE: %w", err)
	}
	defer configFile.Close()

	var config DoorchimeConfig
	decoder := json.NewDecoder(configFile)
	if err := decoder.Decode(&config); err != nil {
		return nil, err
	}

	getSecrets(&config)
	return &config, nil
}

func setLogLevel(logLevel string) {
	switch logLevel {
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "trace":
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	}

	fmt.Printf("logLevel: %v\n", zerolog.GlobalLevel())
}

// StartHere wires the whole application together: load the config, log in
// to the camera cloud, and run the chosen doorbell event source into the
// chime dispatcher until the process is killed.
func StartHere() {
	// .env is optional, real deployments set the environment directly.
	_ = godotenv.Load()

	config, err := buildDoorchime()
	if err != nil {
		log.Fatal().Msgf("Failed to load config: %v", err)
	}

	setLogLevel(config.LogLevel)

	player := &chimeservice.CommandPlayer{
		Command: config.Chime.PlayerCommand,
		Args:    config.Chime.PlayerArgs,
	}
	dispatcher := chimeservice.NewDispatcher(config.Chime, player, clockwork.NewRealClock())

	wg := &sync.WaitGroup{}

	if config.LocalBroker {
		log.Info().Msg("Starting embedded MQTT broker")
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := config.MQTTService.Start(); err != nil {
				log.Fatal().Msgf("MQTT broker failed to start %v", err)
			}
		}()
	}

	switch config.Mode {
	case "bridge":
		log.Info().Msg("Starting local bridge listener")
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := config.BridgeService.Start(dispatcher.HandlePress); err != nil {
				log.Fatal().Msgf("Bridge service failed to start %v", err)
			}
		}()

	default: // cloud push feed
		log.Info().Msg("Logging into Ezviz client")
		client := ezvizservice.NewClient(config.Ezviz)
		token, err := client.Login()
		if err != nil {
			log.Fatal().Msgf("Ezviz login failed: %v", err)
		}
		defer client.Close()

		push, err := pushservice.New(token, config.PushService)
		if err != nil {
			log.Fatal().Msgf("Push service failed to build: %v", err)
		}

		log.Info().Msg("Starting cloud push listener")
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := push.Start(dispatcher.HandlePress); err != nil {
				log.Fatal().Msgf("Push service failed to start %v", err)
			}
		}()
	}

	wg.Wait()
	dispatcher.Wait()
	log.Info().Msg("All services stopped")
}
