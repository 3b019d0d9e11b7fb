package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-workspace-gateway/internal/config"
	"github.com/jrsteele09/go-workspace-gateway/internal/logging"
	"github.com/rs/zerolog/log"
)

func main() {
	for {
		if err := run(); err != nil {
			log.Error().Err(err).Msg("Error running server")
			if errors.Is(err, errFatalConfig) {
				os.Exit(1)
			}
			time.Sleep(1 * time.Second)
		} else {
			break
		}
	}
	log.Info().Msg("Server stopped")
}

var errFatalConfig = errors.New("invalid configuration")

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("Recovered from panic")
			returnError = errors.New("panic recovered")
		}
	}()

	c := config.New()
	logCloser, err := logging.Setup(c)
	if err != nil {
		return fmt.Errorf("%w: %v", errFatalConfig, err)
	}
	defer logCloser.Close()

	displayAppname(c.GetAppName())

	if problems := config.Validate(c); len(problems) > 0 {
		for _, p := range problems {
			if c.IsProduction() {
				log.Error().Str("problem", p).Msg("configuration error")
			} else {
				log.Warn().Str("problem", p).Msg("configuration warning")
			}
		}
		if c.IsProduction() {
			return fmt.Errorf("%w: %d problem(s)", errFatalConfig, len(problems))
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gw, err := build(ctx, c)
	if err != nil {
		return err
	}
	defer gw.close()

	gw.startBackground(ctx, c)

	server := &http.Server{
		Addr:              c.GetPort(),
		Handler:           gw.server,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() { serveErr <- listenAndServe(server) }()

	select {
	case <-waitForStopSignal():
	case err := <-serveErr:
		if err != nil {
			return err
		}
	}
	cancel()
	returnError = shutdown(server)
	return returnError
}

func listenAndServe(server *http.Server) error {
	log.Info().Str("addr", server.Addr).Msg("Server listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() <-chan os.Signal {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	return stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
