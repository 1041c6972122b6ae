package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"term-deposit/internal/cfg"
	"term-deposit/internal/client"
	"term-deposit/internal/logging"
	"term-deposit/internal/ml"

	"github.com/rs/zerolog/log"
)

func main() {
	var (
		input  = flag.String("f", "-", "JSON record to score, - for stdin")
		health = flag.Bool("health", false, "only check server readiness")
	)
	flag.Parse()

	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	if err := logging.Setup(c.LogLevel, os.Stderr); err != nil {
		log.Fatal().Err(err).Msg("logging setup failed")
	}
	api := client.New(c.ServerURL, c.RequestTimeout)

	if *health {
		h, err := api.Health()
		if err != nil {
			log.Fatal().Err(err).Msg("health check failed")
		}
		printJSON(h)
		if !h.Ready {
			os.Exit(1)
		}
		return
	}

	data, err := readInput(*input)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to read record")
	}
	record, err := ml.DecodeRecord(data)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid record")
	}

	outcome, err := api.Predict(record)
	if err != nil {
		log.Fatal().Err(err).Msg("prediction failed")
	}
	printJSON(outcome)
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func printJSON(v any) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to encode output")
	}
	fmt.Println(string(out))
}
