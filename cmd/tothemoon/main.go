package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	ossignal "os/signal"
	"strconv"
	"syscall"

	"tothemoon-go/internal/config"
	"tothemoon-go/internal/session"
	"tothemoon-go/internal/util"
)

const defaultConfigPath = "internal/config/config.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "path to the YAML config")
	flag.Parse()

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	log := util.NewLoggerFor(cfg.App.LogFormat, cfg.App.LogLevel)

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	sess, err := session.New(cfg, os.Stdin, os.Stdout, log)
	if err != nil {
		log.Fatal().Err(err).Msg("start session")
	}
	defer sess.Close()

	sess.Watch(ctx, sess.Symbols(flag.Args()))
	log.Info().Str("provider", cfg.Exchange.Provider).Str("mode", cfg.Strategy.Mode).Msg("session started")

	final, err := sess.Run(ctx)
	if err != nil {
		log.Error().Err(err).Msg("session stopped")
	}
	fmt.Printf("You ended up with %s USD\n", strconv.FormatFloat(final, 'f', -1, 64))
	fmt.Println("Program ended successfully")
}
