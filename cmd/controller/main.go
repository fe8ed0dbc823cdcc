package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"casa-control/config"
	"casa-control/internal/application"
	"casa-control/internal/domain"
	"casa-control/internal/infra/domoticz"
	"casa-control/internal/infra/telegram"
	"casa-control/internal/infra/web"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.Log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logger.Info("shutting down")
		cancel()
	}()

	hub := domoticz.NewClient(cfg.Hub.Address, cfg.Hub.Port, cfg.Hub.Username, cfg.Hub.Password)

	var notifier application.Notifier
	if cfg.Telegram.Enabled {
		notifier = telegram.NewClient(cfg.Telegram.Token, cfg.Telegram.ChatID)
	} else {
		notifier = &application.NoopNotifier{}
	}

	now := time.Now()
	var wg sync.WaitGroup
	var alarm *application.AlarmController
	var thermo *application.ThermostatController

	if cfg.Alarm.Enabled {
		set := alarmSettings(cfg.Alarm, logger)
		store := domoticz.NewStore(hub, cfg.Alarm.DeviceBaseIdx, logger)
		store.Ensure(ctx, domain.AlarmDeviceDefs())
		agg := application.NewAggregator(hub, set.Groups(), logger)
		alarm = application.NewAlarmController(agg, store, notifier, set, logger, now)

		every := heartbeat(cfg.Alarm.Heartbeat, 10*time.Second, logger)
		logger.Info("starting alarm zone controller", "heartbeat", every)
		wg.Add(1)
		go func() {
			defer wg.Done()
			runTicker(ctx, every, alarm.Tick)
		}()
	}

	if cfg.Thermostat.Enabled {
		set := thermostatSettings(cfg.Thermostat, logger)
		store := domoticz.NewStore(hub, cfg.Thermostat.DeviceBaseIdx, logger)
		store.Ensure(ctx, domain.ThermostatDeviceDefs())
		agg := application.NewAggregator(hub, set.Groups(), logger)
		thermo = application.NewThermostatController(agg, store, hub, notifier, set, logger, now)

		every := heartbeat(cfg.Thermostat.Heartbeat, 20*time.Second, logger)
		logger.Info("starting thermostat controller", "heartbeat", every)
		wg.Add(1)
		go func() {
			defer wg.Done()
			runTicker(ctx, every, thermo.Tick)
		}()
	}

	if alarm == nil && thermo == nil {
		logger.Error("no controller enabled, nothing to do")
		os.Exit(1)
	}

	var alarmAPI web.AlarmAPI
	if alarm != nil {
		alarmAPI = alarm
	}
	var thermoAPI web.ThermostatAPI
	if thermo != nil {
		thermoAPI = thermo
	}
	server := web.NewServer(cfg.Web.Addr, alarmAPI, thermoAPI, logger)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := server.Start(ctx); err != nil {
			logger.Error("status server", "error", err)
			cancel()
		}
	}()

	wg.Wait()
}

// runTicker drives a controller: one synchronous tick per heartbeat, first
// tick immediately.
func runTicker(ctx context.Context, every time.Duration, tick func(context.Context, time.Time)) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	tick(ctx, time.Now())
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			tick(ctx, t)
		}
	}
}

func alarmSettings(cfg config.AlarmConfig, logger *slog.Logger) application.AlarmSettings {
	names := []string{"arming-on delay", "detection delay", "alarm-on delay", "alarm-off delay"}
	vals, errs := config.DelayList(cfg.Delays, names, []int{30, 0, 30, 90})
	for _, err := range errs {
		logger.Error("alarm delay parameter", "error", err)
	}
	return application.AlarmSettings{
		ArmingOn:  time.Duration(vals[0]) * time.Second,
		Detection: time.Duration(vals[1]) * time.Second,
		AlarmOn:   time.Duration(vals[2]) * time.Second,
		AlarmOff:  time.Duration(vals[3]) * time.Second,
		Perimeter: config.IdxList(cfg.PerimeterIdx),
		Panic:     config.IdxList(cfg.PanicIdx),
		Night:     config.IdxList(cfg.NightIdx),
		Normal:    config.IdxList(cfg.NormalIdx),
	}
}

func thermostatSettings(cfg config.ThermostatConfig, logger *slog.Logger) application.ThermostatSettings {
	names := []string{
		"pause-on delay", "pause-off delay", "forced-mode duration",
		"presence-on delay", "presence-off delay", "day reduction", "night reduction",
	}
	vals, errs := config.DelayList(cfg.Delays, names, []int{1, 1, 60, 2, 45, 10, 20})
	for _, err := range errs {
		logger.Error("thermostat delay parameter", "error", err)
	}
	return application.ThermostatSettings{
		PauseOn:        time.Duration(vals[0]) * time.Minute,
		PauseOff:       time.Duration(vals[1]) * time.Minute,
		ForcedDuration: time.Duration(vals[2]) * time.Minute,
		PresenceOn:     time.Duration(vals[3]) * time.Minute,
		PresenceOff:    time.Duration(vals[4]) * time.Minute,
		ReducDay:       vals[5],
		ReducNight:     vals[6],

		InsideTemp: config.IdxList(cfg.InsideTempIdx),
		ValveTemp:  config.IdxList(cfg.ValveTempIdx),
		Presence:   config.IdxList(cfg.PresenceIdx),
		Pause:      config.IdxList(cfg.PauseIdx),
		Valves:     config.IdxList(cfg.ValveIdx),

		NormalSetpointIdx:  cfg.NormalSetpointIdx,
		EconomySetpointIdx: cfg.EconomySetpointIdx,
	}
}

func heartbeat(raw string, fallback time.Duration, logger *slog.Logger) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		logger.Warn("invalid heartbeat, using default", "value", raw, "default", fallback)
		return fallback
	}
	return d
}

func setupLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug", "verbose":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
