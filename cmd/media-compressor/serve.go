package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"media-compressor/internal/converter"
	"media-compressor/internal/handlers"
	"media-compressor/internal/logging"
	"media-compressor/internal/metrics"
	"media-compressor/internal/middleware"
	"media-compressor/internal/pipeline"
	"media-compressor/internal/settings"
	"media-compressor/internal/startup"
	"media-compressor/internal/transcoder"
	"media-compressor/internal/watcher"
)

const (
	shutdownTimeout    = 30 * time.Second
	statsInterval      = time.Minute
	toolCheckTimeout   = 10 * time.Second
	serverReadTimeout  = 15 * time.Second
	serverWriteTimeout = 30 * time.Second
	serverIdleTimeout  = 60 * time.Second
)

// cmdServe runs the control server until SIGINT/SIGTERM. Schedule and
// change watching are read from the settings at startup.
func cmdServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	addr := fs.String("addr", "", "listen address (overrides CONTROL_ADDR)")
	runNow := fs.Bool("run", false, "start a run immediately")
	debug := fs.Bool("debug", false, "enable debug logging")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	startTime := time.Now()
	config, flush, err := initProcess(*debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitFailure
	}
	defer flush()
	if *addr != "" {
		config.ControlAddr = *addr
	}
	startup.LogStartup(config)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := openApp(ctx, config)
	if err != nil {
		logging.Error("%v", err)
		return exitFailure
	}
	defer a.Close()

	st, err := a.store.Load()
	if err != nil {
		logging.Warn("Failed to load settings, using defaults until fixed: %v", err)
		def := settings.Defaults()
		st = &def
	}
	if err := st.Validate(); err != nil {
		logging.Warn("Settings are incomplete, runs will be refused until fixed: %v", err)
	}

	toolCtx, toolCancel := context.WithTimeout(ctx, toolCheckTimeout)
	tools := transcoder.CheckTools(toolCtx, converter.Tools(st))
	toolCancel()
	startup.LogToolCheck(tools)

	collector := metrics.NewCollector(a.catalog, a.config.CatalogPath, statsInterval)
	collector.Start()
	defer collector.Stop()

	sched := pipeline.NewScheduler()
	if st.Schedule != "" {
		if err := sched.ScheduleRuns(st.Schedule, a.ctrl); err != nil {
			logging.Warn("Invalid schedule %q: %v", st.Schedule, err)
		}
	}
	sched.Start()
	defer sched.Stop()
	startup.LogSchedule(sched.Expr(), sched.NextRunAt())

	w := startWatcher(st, a.ctrl)
	if w != nil {
		defer w.Close()
	}

	h := handlers.New(a.ctrl, sched, tools)
	router := h.Router()
	startup.LogHTTPRoutes(router)

	srv := &http.Server{
		Addr:         config.ControlAddr,
		Handler:      middleware.Logger(middleware.DefaultLoggingConfig())(router),
		ReadTimeout:  serverReadTimeout,
		WriteTimeout: serverWriteTimeout,
		IdleTimeout:  serverIdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()
	startup.LogServerStarted(config.ControlAddr, time.Since(startTime))

	if *runNow {
		if err := a.ctrl.StartRun(pipeline.TriggerManual); err != nil {
			logging.Warn("Failed to start run: %v", err)
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	code := exitOK
	select {
	case sig := <-sigChan:
		startup.LogShutdownInitiated(sig.String())
	case err := <-serverErr:
		logging.Error("Server error: %v", err)
		code = exitFailure
	}

	shutdown(srv, a.ctrl, cancel)
	return code
}

func startWatcher(st *settings.Settings, ctrl *pipeline.Controller) *watcher.Watcher {
	if !st.WatchChanges || st.MonitoredDir == "" {
		startup.LogWatcher(false, "")
		return nil
	}
	w, err := watcher.New(watcher.Options{
		Root:       st.MonitoredDir,
		IsExcluded: st.IsExcluded,
		Handle:     ctrl.HandleChanges,
	})
	if err == nil {
		err = w.Start()
	}
	if err != nil {
		logging.Warn("Failed to start change watcher: %v", err)
		if w != nil {
			w.Close()
		}
		startup.LogWatcher(false, "")
		return nil
	}
	startup.LogWatcher(true, st.MonitoredDir)
	return w
}

// shutdown stops accepting requests, asks the running operation to stop
// and kills the encoders if it does not finish in time.
func shutdown(srv *http.Server, ctrl *pipeline.Controller, cancel context.CancelFunc) {
	ctx, done := context.WithTimeout(context.Background(), shutdownTimeout)
	defer done()

	startup.LogShutdownStep("Shutting down control server")
	if err := srv.Shutdown(ctx); err != nil {
		logging.Warn("Server shutdown error: %v", err)
	} else {
		startup.LogShutdownStepComplete("Control server stopped")
	}

	startup.LogShutdownStep("Stopping pipeline")
	if ctrl.RequestStop() {
		finished := make(chan struct{})
		go func() {
			ctrl.Wait()
			close(finished)
		}()
		select {
		case <-finished:
		case <-ctx.Done():
			logging.Warn("Pipeline did not stop in %v, aborting running conversions", shutdownTimeout)
			cancel()
			<-finished
		}
	}
	startup.LogShutdownStepComplete("Pipeline stopped")
	startup.LogShutdownComplete()
}
