package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"blogapi/adapters/httpserver"
	"blogapi/config"
	"blogapi/domain/services/backend"

	"github.com/google/gops/agent"
	log "github.com/sirupsen/logrus"
)

func main() {
	configFile := flag.String("config", "", "location of an optional rjson configuration file")
	envFile := flag.String("env", "", "location of an optional .env file")
	flag.Parse()

	opts, err := config.Load(*configFile, *envFile)
	if err != nil {
		log.Fatalf("Loading configuration: %v", err)
	}

	if opts.Debug {
		log.SetLevel(log.DebugLevel)
	}

	if err := agent.Listen(agent.Options{}); err != nil {
		log.WithField("err", err).Warn("Could not start gops agent")
	} else {
		defer agent.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	storage, closeStorage, err := backend.Open(ctx, opts)
	cancel()
	if err != nil {
		log.Fatalf("Could not open storage: %v", err)
	}
	defer func() {
		if err := closeStorage(); err != nil {
			log.Warnf("Could not close storage: %v", err)
		}
	}()

	handler := httpserver.NewServer(storage)
	if err := handler.SetTimeout(opts.Timeout); err != nil {
		log.Fatal(err)
	}
	srv := &http.Server{
		Addr:    opts.Addr,
		Handler: handler,
	}

	// ListenAndServe returns as soon as Shutdown is called, so wait for the
	// in-flight requests before running the deferred clean-up.
	done := make(chan struct{})
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		defer close(done)
		sig := <-c
		log.WithField("signal", sig).Info("Shutting down server")
		ctx, cancel := context.WithTimeout(context.Background(), opts.Timeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.WithFields(log.Fields{"err": err}).Warn("Could not shut down the server cleanly")
		}
	}()

	log.WithFields(log.Fields{"addr": opts.Addr}).Info("Listening")
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		log.Error(err)
		return
	}
	<-done
}
