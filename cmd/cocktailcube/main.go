package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"
)

const version = "1.0.0"

func printVersion() {
	fmt.Printf("CocktailCube v%s\n", version)
	fmt.Println("Control daemon for the CocktailCube mixer and bar dispenser")
}

func printUsage() {
	printVersion()
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  cocktailcube [OPTIONS]")
	fmt.Println()
	fmt.Println("DESCRIPTION:")
	fmt.Println("  Polls the device's /control query interface, mirrors the mixture into")
	fmt.Println("  the doughnut control and turns completed gestures into device writes.")
	fmt.Println("  Views connect to the WebSocket state feed; scripts use the IPC socket.")
	fmt.Println()
	fmt.Println("OPTIONS:")
	fmt.Println("  -config string")
	fmt.Println("        YAML config file (optional; defaults are used when omitted)")
	fmt.Println()
	fmt.Println("  -device-url string")
	fmt.Println("        Device base URL (default \"http://192.168.4.1\")")
	fmt.Println()
	fmt.Println("  -device-timeout-ms int")
	fmt.Printf("        Per-request timeout in ms (default %d)\n", defaultDeviceTimeoutMS)
	fmt.Println()
	fmt.Println("  -poll-interval-ms int")
	fmt.Printf("        Poll loop period in ms (default %d)\n", defaultPollIntervalMS)
	fmt.Println()
	fmt.Println("  -http-port int")
	fmt.Println("        State feed HTTP port (default 8080)")
	fmt.Println()
	fmt.Println("  -ipc-socket string")
	fmt.Println("        Unix domain socket path for IPC (default \"/tmp/cocktailcube.sock\")")
	fmt.Println()
	fmt.Println("  -log-level string")
	fmt.Println("        Log level: error, warn, info, debug (default \"info\")")
	fmt.Println()
	fmt.Println("  -version")
	fmt.Println("        Print version and exit")
	fmt.Println()
	fmt.Println("  -help")
	fmt.Println("        Print this help message")
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  # Device in access point mode")
	fmt.Println("  cocktailcube")
	fmt.Println()
	fmt.Println("  # Device joined to the home network, verbose")
	fmt.Println("  cocktailcube -device-url http://cocktailcube.local -log-level debug")
	fmt.Println()
}

func main() {
	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" {
			printVersion()
			return
		}
		if arg == "-help" || arg == "--help" || arg == "-h" {
			printUsage()
			return
		}
	}

	var (
		configPath      = flag.String("config", "", "YAML config file")
		deviceURL       = flag.String("device-url", "", "Device base URL")
		deviceTimeoutMS = flag.Int("device-timeout-ms", 0, "Per-request timeout in ms")
		pollIntervalMS  = flag.Int("poll-interval-ms", 0, "Poll loop period in ms")
		httpPort        = flag.Int("http-port", 0, "State feed HTTP port")
		ipcSocketPath   = flag.String("ipc-socket", "", "Unix domain socket path for IPC")
		logLevelStr     = flag.String("log-level", "", "Log level: error, warn, info, debug")
		_               = flag.Bool("version", false, "Print version and exit")
		_               = flag.Bool("help", false, "Print help message")
	)
	flag.Usage = printUsage
	flag.Parse()

	cfg := DefaultConfig()
	if *configPath != "" {
		loaded, err := LoadConfigFile(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	// Only flags given on the command line override the file.
	var overrides FlagOverrides
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "device-url":
			overrides.DeviceURL = deviceURL
		case "device-timeout-ms":
			overrides.DeviceTimeoutMS = deviceTimeoutMS
		case "poll-interval-ms":
			overrides.PollIntervalMS = pollIntervalMS
		case "http-port":
			overrides.HTTPPort = httpPort
		case "ipc-socket":
			overrides.IPCSocketPath = ipcSocketPath
		case "log-level":
			overrides.LogLevel = logLevelStr
		}
	})
	overrides.Apply(&cfg)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	logLevel, _ := parseLogLevel(cfg.Logging.Level)
	logger := setupLogger(os.Stdout, logLevel, cfg.Logging.Format)

	client, err := NewDeviceClient(cfg.Device.URL, logger, cfg.Device.TimeoutMS)
	if err != nil {
		logger.Error("invalid device configuration", "error", err)
		os.Exit(1)
	}

	control := NewDoughnut(cfg.Control.MinAngleDeg)
	session := NewSession(client, control, cfg.ToSessionConfig(), logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Central event bus: views, IPC and input devices feed the daemon loop.
	events := make(chan Event, 64)
	broadcasts := make(chan StateBroadcast, 128)

	wsServer := NewServer(logger, events, ServerConfig{})
	mux := newHTTPMux(wsServer, events, cfg.HTTP.WSPath, logger)

	logger.Debug("configuration",
		"device_url", cfg.Device.URL,
		"device_timeout_ms", cfg.Device.TimeoutMS,
		"poll_interval_ms", cfg.Poll.IntervalMS,
		"online_threshold_ms", cfg.Poll.OnlineThresholdMS,
		"min_angle_deg", cfg.Control.MinAngleDeg,
		"adjust_step_deg", cfg.Control.AdjustStepDeg,
		"input_devices", cfg.Input.Devices)
	logger.Info("starting cocktailcube",
		"version", version,
		"device", cfg.Device.URL,
		"http_port", cfg.HTTP.Port,
		"ws_path", cfg.HTTP.WSPath,
		"ipc", cfg.IPC.SocketPath)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		runDaemon(gctx, events, session, cfg.PollInterval(), broadcasts, logger)
		return nil
	})
	g.Go(func() error {
		wsServer.Hub().Run(gctx)
		return nil
	})
	g.Go(func() error {
		RunBroadcaster(gctx, wsServer.Hub(), broadcasts, logger)
		return nil
	})
	g.Go(func() error {
		return runHTTPServer(gctx, cfg.HTTP.Port, mux, logger)
	})
	if cfg.IPC.SocketPath != "" {
		g.Go(func() error {
			return runIPCServer(gctx, ExpandPath(cfg.IPC.SocketPath), events, logger)
		})
	}
	if len(cfg.Input.Devices) > 0 {
		g.Go(func() error {
			return runInputDevices(gctx, cfg.Input.Devices, events, logger)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("cocktailcube stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("shut down")
}
