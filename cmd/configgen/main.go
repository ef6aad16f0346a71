package main

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/danmuck/codetango/internal/config"
	"github.com/danmuck/codetango/internal/logging"
)

func main() {
	output := pflag.String("output", "codetango.toml", "output path for config template")
	validate := pflag.Bool("validate", false, "validate an existing config file")
	input := pflag.String("input", "codetango.toml", "config path for validation")
	force := pflag.Bool("force", false, "overwrite existing config file")
	pflag.Parse()

	logging.ConfigureRuntime()
	logging.SetLevel("info")

	if *validate {
		if _, err := config.Load(*input, config.Defaults()); err != nil {
			log.Fatal().Err(err).Msg("configgen validate failed")
		}
		log.Info().Str("path", *input).Msg("configgen validated config")
		return
	}

	if err := config.WriteTemplate(*output, *force); err != nil {
		log.Fatal().Err(err).Msg("configgen write failed")
	}
	log.Info().Str("path", *output).Msg("configgen wrote config template")
}
