// finch sends GraphQL documents over an extension message bridge and relays them upstream.
package main

import (
	"os"

	"github.com/Darkness4/finch/cmd/query"
	"github.com/Darkness4/finch/cmd/relay"
	"github.com/Darkness4/finch/utils/useragent"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

var version = "dev"

func init() {
	log.Logger = log.Logger.Level(zerolog.InfoLevel)
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

var app = &cli.App{
	Name:    "finch",
	Usage:   "GraphQL over an extension message bridge.",
	Version: version,
	Before: func(_ *cli.Context) error {
		if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
			log.Warn().Err(err).Msg("failed to load .env")
		}
		return nil
	},
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:       "debug",
			EnvVars:    []string{"DEBUG"},
			Value:      false,
			HasBeenSet: true,
			Action: func(_ *cli.Context, s bool) error {
				if s {
					log.Logger = log.Logger.Level(zerolog.DebugLevel)
					zerolog.SetGlobalLevel(zerolog.DebugLevel)
				}
				return nil
			},
		},
		&cli.BoolFlag{
			Name:       "trace",
			EnvVars:    []string{"TRACE"},
			Value:      false,
			HasBeenSet: true,
			Action: func(_ *cli.Context, s bool) error {
				if s {
					log.Logger = log.Logger.Level(zerolog.TraceLevel)
					zerolog.SetGlobalLevel(zerolog.TraceLevel)
				}
				return nil
			},
		},
		&cli.BoolFlag{
			Name:       "log-json",
			EnvVars:    []string{"LOG_JSON"},
			Value:      false,
			HasBeenSet: true,
			Action: func(_ *cli.Context, s bool) error {
				if !s {
					log.Logger = log.Logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
				}
				return nil
			},
		},
	},
	Commands: []*cli.Command{
		query.Command,
		relay.Command,
	},
}

func main() {
	useragent.Version = version
	log.Logger = log.Logger.With().Caller().Logger()
	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("application finished")
	}
}
