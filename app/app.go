package app

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/slpdexdb/slpdexd/infrastructure/config"
	"github.com/slpdexdb/slpdexd/infrastructure/logger"
	"github.com/slpdexdb/slpdexd/infrastructure/os/signal"
	"github.com/slpdexdb/slpdexd/util/panics"
	"github.com/slpdexdb/slpdexd/util/profiling"
	"github.com/slpdexdb/slpdexd/version"
)

type slpdexdApp struct {
	cfg *config.Config
}

// StartApp starts the slpdexd app, and blocks until it finishes running
func StartApp() error {
	// Load configuration and parse command line. This function also
	// initializes logging and configures it accordingly.
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	defer logger.BackendLog.Close()
	defer panics.HandlePanic(log, "MAIN", nil)

	app := &slpdexdApp{cfg: cfg}
	return app.main(nil)
}

func (app *slpdexdApp) main(startedChan chan<- struct{}) error {
	// Get a channel that will be closed when a shutdown signal has been
	// triggered either from an OS signal such as SIGINT (Ctrl+C) or through
	// signal.ShutdownRequestChannel.
	interrupt := signal.InterruptListener()
	defer log.Info("Shutdown complete")

	// Show version at startup.
	log.Infof("Version %s", version.Version())
	log.Infof("Running on %s network with %d CPUs", app.cfg.NetParams().Name, runtime.NumCPU())

	// Enable http profiling server if requested.
	if app.cfg.Profile != "" {
		profiling.Start(app.cfg.Profile, log)
	}

	// Return now if an interrupt signal was triggered.
	if signal.InterruptRequested(interrupt) {
		return nil
	}

	componentManager, err := NewComponentManager(app.cfg)
	if err != nil {
		log.Errorf("Unable to start slpdexd: %+v", err)
		return err
	}

	defer func() {
		log.Infof("Gracefully shutting down slpdexd...")

		shutdownDone := make(chan struct{})
		spawn("slpdexdApp.main-Stop", func() {
			componentManager.Stop()
			shutdownDone <- struct{}{}
		})

		const shutdownTimeout = 2 * time.Minute

		select {
		case <-shutdownDone:
		case <-time.After(shutdownTimeout):
			log.Criticalf("Graceful shutdown timed out %s. Terminating...", shutdownTimeout)
		}
		log.Infof("Slpdexd shutdown complete")
	}()

	componentManager.Start()

	if startedChan != nil {
		startedChan <- struct{}{}
	}

	// Wait until the interrupt signal is received from an OS signal or
	// shutdown is requested through signal.ShutdownRequestChannel.
	<-interrupt
	return nil
}
