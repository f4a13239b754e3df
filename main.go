package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"visionlab.dev/visiongw/sscma"
	"visionlab.dev/visiongw/vision"
)

// invokeTimeout bounds one inference round on the wire.
const invokeTimeout = 2 * time.Second

// Gateway owns the device and serializes access to it between the invoke
// loop and the HTTP handlers. The device itself is single-owner and
// poll-driven, so one mutex is the whole concurrency story.
type Gateway struct {
	mu     sync.Mutex
	device *vision.Device
	// updatedAt is when the last successful inference refreshed the results
	updatedAt time.Time
}

// Invoke runs one inference round and stamps the snapshot time on success.
func (g *Gateway) Invoke(timeout time.Duration) (sscma.Code, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	code, err := g.device.Invoke(1, false, true, timeout)
	if err == nil && code == sscma.CodeOK {
		g.updatedAt = time.Now()
	}
	return code, err
}

// ResultSnapshot is the JSON view of the current inference results.
type ResultSnapshot struct {
	Boxes     []sscma.Box      `json:"boxes"`
	Classes   []sscma.Class    `json:"classes"`
	Points    []sscma.Point    `json:"points"`
	Keypoints []sscma.Keypoint `json:"keypoints"`
	Perf      sscma.Perf       `json:"perf"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// Snapshot copies the current result set out from under the lock.
func (g *Gateway) Snapshot() ResultSnapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	d := g.device
	return ResultSnapshot{
		Boxes:     append([]sscma.Box(nil), d.Boxes()...),
		Classes:   append([]sscma.Class(nil), d.Classes()...),
		Points:    append([]sscma.Point(nil), d.Points()...),
		Keypoints: append([]sscma.Keypoint(nil), d.Keypoints()...),
		Perf:      d.Perf(),
		UpdatedAt: g.updatedAt,
	}
}

// Identity is the JSON view of the device's cached identity fields.
type Identity struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Identity queries the device identity, served from the cache after the
// first call.
func (g *Gateway) Identity() (Identity, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	id, err := g.device.ID(true)
	if err != nil {
		return Identity{}, err
	}
	name, err := g.device.Name(true)
	if err != nil {
		return Identity{}, err
	}
	version, err := g.device.Version(true)
	if err != nil {
		return Identity{}, err
	}
	return Identity{ID: id, Name: name, Version: version}, nil
}

func main() {
	flag.String("serial-port", "/dev/ttyUSB0", "Serial port to connect to the vision module")
	flag.Int("baud-rate", 921600, "Baud rate for serial communication")
	flag.String("bind-address", "0.0.0.0:8080", "Bind address for the HTTP server")
	flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.Duration("invoke-interval", 100*time.Millisecond, "Pause between inference rounds")
	flag.Int("buffer-size", 8192, "Response buffer size in bytes")
	flag.Parse()

	config, err := LoadConfig(WithDefaults(), WithEnv(), WithFlags(flag.CommandLine))
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logLevel := slog.LevelInfo
	switch config.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	deviceConfig, err := vision.NewConfigBuilder().
		WithBufferSize(config.BufferSize).
		WithDialer(vision.SerialDialer{
			PortName: config.SerialPort,
			BaudRate: config.BaudRate,
		}).
		WithLogger(logger.With("component", "device")).
		Build()
	if err != nil {
		logger.Error("Failed to create device config", "error", err)
		os.Exit(1)
	}

	device, err := vision.New(context.Background(), deviceConfig)
	if err != nil {
		logger.Error("Failed to open vision module", "error", err)
		os.Exit(1)
	}

	gw := &Gateway{device: device}

	if identity, err := gw.Identity(); err != nil {
		logger.Warn("Could not query device identity", "error", err)
	} else {
		logger.Info("Vision module attached", "id", identity.ID, "name", identity.Name, "version", identity.Version)
	}

	httpServer := &http.Server{
		Addr: config.BindAddress,
		Handler: &Server{
			Logger:  logger.With("component", "server"),
			Gateway: gw,
		},
	}

	// Channel to listen for interrupt signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start HTTP server in a goroutine
	go func() {
		logger.Info("Starting results server", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Inference loop: keep refreshing the result snapshot until a shutdown
	// signal arrives.
loop:
	for {
		select {
		case sig := <-sigChan:
			logger.Info("Received shutdown signal", "signal", sig)
			break loop
		default:
		}

		code, err := gw.Invoke(invokeTimeout)
		if err != nil {
			if errors.Is(err, vision.ErrBufferExhausted) {
				logger.Error("Response buffer too small for frame rate; raise --buffer-size", "error", err)
			} else {
				logger.Error("Invoke failed", "error", err)
			}
			break loop
		}
		if code != sscma.CodeOK {
			logger.Warn("Device rejected invoke", "code", code.String())
		}

		time.Sleep(config.InvokeInterval)
	}

	logger.Info("Closing vision module")
	if err := device.Close(); err != nil {
		logger.Error("Failed to close vision module", "error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger.Info("Closing HTTP server")
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("Failed to gracefully shutdown server", "error", err)
		os.Exit(1)
	}
}
