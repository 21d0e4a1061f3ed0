package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/washsense/washsense/internal/audio"
	"github.com/washsense/washsense/internal/config"
	"github.com/washsense/washsense/internal/cue"
	"github.com/washsense/washsense/internal/emitter"
	"github.com/washsense/washsense/internal/fsm"
	"github.com/washsense/washsense/internal/guidance"
	"github.com/washsense/washsense/internal/metrics"
	"github.com/washsense/washsense/internal/provider"
	"github.com/washsense/washsense/internal/sensing"
	"github.com/washsense/washsense/internal/server"
	"github.com/washsense/washsense/internal/session"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "washsense-sensor"
	serviceVersion    = "1.0.0"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger based on configuration
	logger := initLogger(cfg.Logging)

	// Log service startup
	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	logger.Info("Configuration loaded",
		slog.String("pool_mode", cfg.Pool.Mode),
		slog.Int("providers", len(cfg.Providers)),
		slog.Float64("dispatch_interval", cfg.Sensing.DispatchInterval),
		slog.Float64("audio_interval", cfg.Sensing.AudioInterval),
		slog.Float64("idle_timeout", cfg.Engine.IdleTimeout),
		slog.Bool("audio_enabled", cfg.Audio.Enabled),
		slog.String("log_level", cfg.Logging.Level),
	)

	// Create cancellable context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Prometheus metrics
	appMetrics := metrics.NewMetrics()
	logger.Info("Prometheus metrics initialized")

	// Build the provider pool
	endpoints := make([]provider.Endpoint, 0, len(cfg.Providers))
	for _, pc := range cfg.Providers {
		p, err := provider.New(provider.Config{
			Name:      pc.Name,
			BaseURL:   pc.BaseURL,
			ModelName: pc.ModelName,
			Timeout:   pc.GetTimeoutDuration(),
			Backoff:   pc.GetBackoffDuration(),
			MaxTokens: pc.MaxTokens,
		}, logger, appMetrics)
		if err != nil {
			logger.Error("Failed to create provider",
				slog.String("provider", pc.Name),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
		endpoints = append(endpoints, p)
	}

	pool, err := provider.NewPool(endpoints, cfg.Pool.Mode, logger)
	if err != nil {
		logger.Error("Failed to create provider pool", slog.String("error", err.Error()))
		os.Exit(1)
	}

	reachable := pool.HealthCheckAll(ctx)
	healthyCount := 0
	for name, ok := range reachable {
		if ok {
			healthyCount++
			continue
		}
		logger.Warn("Provider unreachable", slog.String("provider", name))
	}
	logger.Info("Provider health check complete",
		slog.String("mode", pool.Mode()),
		slog.Int("healthy", healthyCount),
		slog.Int("total", len(endpoints)),
		slog.Any("providers", reachable),
	)
	if healthyCount == 0 {
		logger.Warn("No healthy providers; inference will degrade to neutral cues until one recovers")
	}

	// Audio classification (optional)
	var sampler *audio.Sampler
	if cfg.Audio.Enabled {
		classifier, err := audio.NewClassifier(cfg.Audio.WindowSize, cfg.Audio.SampleRate, cfg.Audio.Smoothing)
		if err != nil {
			logger.Error("Failed to create audio classifier", slog.String("error", err.Error()))
			os.Exit(1)
		}
		sampler = audio.NewSampler(classifier)
		logger.Info("Audio classifier initialized",
			slog.Int("sample_rate", cfg.Audio.SampleRate),
			slog.Int("window_size", classifier.WindowSize()),
		)
	}

	// Sensing loop
	frames := sensing.NewFrameSlot()
	events := sensing.NewEventQueue()

	var audioSampler sensing.AudioSampler
	if sampler != nil {
		audioSampler = sampler
	}
	loop, err := sensing.NewLoop(sensing.LoopConfig{
		TickInterval:     cfg.Sensing.GetTickInterval(),
		DispatchInterval: cfg.Sensing.GetDispatchInterval(),
		AudioInterval:    cfg.Sensing.GetAudioInterval(),
	}, frames, events, pool, audioSampler, logger, appMetrics)
	if err != nil {
		logger.Error("Failed to create sensing loop", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// State engine
	engine, err := fsm.NewEngine(cfg.Engine.GetIdleTimeout(), cfg.Engine.CueBufferSize)
	if err != nil {
		logger.Error("Failed to create state engine", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Session recording
	recorder, err := session.NewRecorder(cfg.Session.OutputDir)
	if err != nil {
		logger.Error("Failed to create session recorder", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Session started", slog.String("session_id", recorder.SessionID()))

	// Feedback selection
	var selector *guidance.Selector
	if cfg.Feedback.Enabled {
		selector = guidance.NewSelector(cfg.Feedback.GetCooldown())
	}

	// MQTT emitter (optional)
	var emit *emitter.Emitter
	if cfg.MQTT.Enabled {
		emit, err = emitter.New(emitter.Config{
			Broker:      cfg.MQTT.Broker,
			ClientID:    cfg.MQTT.ClientID,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			QoS:         byte(cfg.MQTT.QoS),
		}, logger)
		if err != nil {
			logger.Error("Failed to create MQTT emitter", slog.String("error", err.Error()))
			os.Exit(1)
		}
		if err := emit.Connect(); err != nil {
			logger.Warn("MQTT connect failed, continuing without emitter",
				slog.String("error", err.Error()),
			)
			emit = nil
		}
	}

	// HTTP API server (if enabled)
	var httpServer *server.HTTPServer
	if cfg.HTTP.Enabled {
		httpConfig := server.HTTPServerConfig{
			Port:    cfg.HTTP.Port,
			Address: cfg.HTTP.Address,
			Enabled: cfg.HTTP.Enabled,
		}
		httpServer = server.NewHTTPServer(httpConfig, logger, cfg,
			engine, pool, loop, frames, sampler, recorder.SessionID(), appMetrics)
		logger.Info("HTTP API server initialized",
			slog.String("address", fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port)),
		)
		if err := httpServer.Start(); err != nil {
			logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	// Start the sensing loop and the consumer
	go loop.Run(ctx)

	consumer := &consumer{
		engine:   engine,
		events:   events,
		recorder: recorder,
		selector: selector,
		emit:     emit,
		metrics:  appMetrics,
		logger:   logger,
	}
	go consumer.run(ctx, cfg.Sensing.GetTickInterval())

	if emit != nil {
		go func() {
			ticker := time.NewTicker(30 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if err := emit.PublishHealth(recorder.SessionID(), engine.CurrentState()); err != nil {
						logger.Warn("Failed to publish health", slog.String("error", err.Error()))
					}
				}
			}
		}()
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, waiting for signals...")

	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	case <-ctx.Done():
		logger.Info("Context cancelled, shutting down")
	}

	logger.Info("Starting graceful shutdown...")
	cancel()

	// Stop HTTP server first (stop accepting new requests)
	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
		}
	}

	if emit != nil {
		emitStats := emit.GetStats()
		logger.Info("Emitter statistics",
			slog.Any("published", emitStats.Published),
			slog.Uint64("errors", emitStats.Errors),
		)
		emit.Disconnect()
	}

	// Persist session artifacts
	history := engine.History()
	score := engine.GetScore()

	logPath, err := recorder.Save(history, score)
	if err != nil {
		logger.Error("Failed to save session log", slog.String("error", err.Error()))
	} else {
		logger.Info("Session log saved", slog.String("path", logPath))
	}

	reportPath, err := session.WriteReport(cfg.Session.OutputDir, history, score)
	if err != nil {
		logger.Error("Failed to write report", slog.String("error", err.Error()))
	} else {
		logger.Info("Assessment report written", slog.String("path", reportPath))
		fmt.Println(session.Report(history, score))
	}

	// Final statistics
	loopStats := loop.GetStats()
	logger.Info("Final sensing statistics",
		slog.Uint64("ticks", loopStats.Ticks),
		slog.Uint64("frames_dispatched", loopStats.FramesDispatched),
		slog.Uint64("frames_dropped", loopStats.FramesDropped),
		slog.Uint64("visual_events", loopStats.VisualEvents),
		slog.Uint64("audio_events", loopStats.AudioEvents),
	)

	logger.Info("Service stopped")
}

// consumer drains cue events and drives the state engine. The latest cues
// of each kind are remembered so every new event, visual or audio, steps
// the engine with a fully fused map. Audio evidence alone must keep the
// machine live: with every provider backed off the idle timeout still has
// to regress the state.
type consumer struct {
	engine   *fsm.Engine
	events   *sensing.EventQueue
	recorder *session.Recorder
	selector *guidance.Selector
	emit     *emitter.Emitter
	metrics  *metrics.Metrics
	logger   *slog.Logger

	latestVisual cue.Map
	latestAudio  cue.Map
}

func (c *consumer) run(ctx context.Context, tick time.Duration) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.step()
		}
	}
}

func (c *consumer) step() {
	drained := c.events.Drain()
	if c.metrics != nil {
		c.metrics.SetEventQueueSize(c.events.Len())
	}

	for _, ev := range drained {
		switch ev.Kind {
		case cue.KindAudio:
			c.latestAudio = ev.Cues
		case cue.KindVisual:
			c.latestVisual = ev.Cues
		default:
			continue
		}

		merged := cue.Merge(c.latestVisual, c.latestAudio)
		c.recorder.RecordCues(c.engine.CurrentState(), merged)
		if tr := c.engine.Update(merged); tr != nil {
			c.onTransition(*tr, merged)
		}
	}

	// Dwell warnings between transitions.
	if c.selector != nil {
		if msg, ok := c.selector.Poll(); ok {
			c.speak(msg)
		}
	}
}

func (c *consumer) onTransition(tr fsm.Transition, cues cue.Map) {
	c.logger.Info("State transition",
		slog.String("from", string(tr.From)),
		slog.String("to", string(tr.To)),
	)
	if c.metrics != nil {
		c.metrics.RecordTransition(string(tr.From), string(tr.To))
	}
	c.recorder.RecordTransition(tr, cues)

	if c.selector != nil {
		if msg, ok := c.selector.OnTransition(tr); ok {
			c.speak(msg)
		}
		// After an idle regression, repeat the restart instructions at
		// the engine's bumped detail level.
		if tr.To == fsm.Idle {
			if msg, ok := c.selector.Guidance(c.engine.DetailLevel()); ok {
				c.speak(msg)
			}
		}
	}

	if c.emit != nil {
		if err := c.emit.PublishTransition(c.recorder.SessionID(), tr, cues); err != nil {
			c.logger.Warn("Failed to publish transition", slog.String("error", err.Error()))
		}
	}

	if tr.To == fsm.Done {
		c.onDone()
	}
}

func (c *consumer) onDone() {
	score := c.engine.GetScore()
	if score == nil {
		return
	}

	history := c.engine.History()
	var duration time.Duration
	if len(history) > 0 {
		duration = time.Since(history[0].EnterTime)
	}

	c.logger.Info("Session complete",
		slog.Int("score", score.Total),
		slog.Int("max_score", score.MaxTotal),
		slog.Duration("duration", duration),
	)
	if c.metrics != nil {
		c.metrics.RecordSessionDone(duration.Seconds(), score.Total)
	}

	if c.emit != nil {
		if err := c.emit.PublishScore(c.recorder.SessionID(), *score); err != nil {
			c.logger.Warn("Failed to publish score", slog.String("error", err.Error()))
		}
	}
}

func (c *consumer) speak(msg string) {
	c.logger.Info("Feedback", slog.String("message", msg))
	c.recorder.RecordFeedback(c.engine.CurrentState(), msg)
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
