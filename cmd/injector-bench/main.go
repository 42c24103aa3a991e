// Command injector-bench drives a fuel injector test bench: it pulses up to
// four injector outputs at a simulated engine speed for a timed session and
// exposes control over HTTP, MQTT and an optional serial console.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/injector-bench/internal/config"
	"github.com/sweeney/injector-bench/internal/console"
	"github.com/sweeney/injector-bench/internal/gpio"
	"github.com/sweeney/injector-bench/internal/logic"
	"github.com/sweeney/injector-bench/internal/mqtt"
	"github.com/sweeney/injector-bench/internal/status"
	"github.com/sweeney/injector-bench/internal/web"
)

// publishQueueSize bounds events waiting for the broker.
const publishQueueSize = 64

func main() {
	configPath := flag.String("config", "/etc/injector-bench/config.yaml", "Daemon config file")
	settingsPath := flag.String("settings", "", "Bench settings file (overrides config)")
	poll := flag.Duration("poll", 0, "Control loop interval (overrides config)")
	broker := flag.String("broker", "", "MQTT broker address, e.g. tcp://192.168.1.200:1883 (overrides config)")
	httpAddr := flag.String("http", "", "HTTP status address (overrides config, \"off\" disables)")
	serialPort := flag.String("serial", "", "Serial console device (overrides config)")
	heartbeat := flag.Duration("heartbeat", 0, "Heartbeat interval (overrides config, 0 disables when set)")
	printSettings := flag.Bool("print-settings", false, "Print the stored bench settings and exit")

	flag.Parse()

	cfg := config.LoadDaemon(*configPath)
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "settings":
			cfg.SettingsPath = *settingsPath
		case "poll":
			cfg.Poll = *poll
		case "broker":
			cfg.MQTT.Broker = *broker
		case "http":
			cfg.HTTPAddr = *httpAddr
		case "serial":
			cfg.Serial.Port = *serialPort
		case "heartbeat":
			cfg.Heartbeat = *heartbeat
		}
	})
	if cfg.HTTPAddr == "off" {
		cfg.HTTPAddr = ""
	}

	if err := run(cfg, *printSettings); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func run(cfg *config.Daemon, printSettings bool) error {
	store := config.NewStore(cfg.SettingsPath)
	settings, err := store.Load()
	if err != nil {
		log.Printf("[config] %v", err)
	}

	if printSettings {
		out, err := yaml.Marshal(settings)
		if err != nil {
			return fmt.Errorf("encode settings: %w", err)
		}
		fmt.Print(string(out))
		return nil
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	// Outputs come up low before anything can start a session.
	writer, err := gpio.NewRealWriter(cfg.GPIO.Chip, cfg.GPIO.Outputs)
	if err != nil {
		return fmt.Errorf("init outputs: %w", err)
	}
	defer writer.Close()

	var button gpio.Reader = gpio.NopReader{}
	if cfg.GPIO.StopPin >= 0 {
		r, err := gpio.NewRealReader(cfg.GPIO.Chip, cfg.GPIO.StopPin)
		if err != nil {
			return fmt.Errorf("init stop button: %w", err)
		}
		button = r
	}
	defer button.Close()

	commands := make(chan logic.Command, 8)

	var (
		broker     mqtt.Publisher = nopPublisher{}
		mqttStatus mqtt.ConnectionStatus
	)
	if cfg.MQTT.Broker != "" {
		p := mqtt.NewRealPublisher(cfg.MQTT.Broker, cfg.MQTT.ClientID, commands)
		broker, mqttStatus = p, p
	}
	// The control loop only ever enqueues; broker round trips happen on the
	// queue's goroutine.
	publisher := mqtt.NewQueue(broker, publishQueueSize, 5*time.Second)
	defer publisher.Close()

	tracker := status.NewTracker(time.Now(), status.Config{
		PollUs:      cfg.Poll.Microseconds(),
		HeartbeatMs: cfg.Heartbeat.Milliseconds(),
		Broker:      cfg.MQTT.Broker,
		HTTPAddr:    cfg.HTTPAddr,
		SerialPort:  cfg.Serial.Port,
	})
	tracker.SetSettings(store.Current(), store.Replaced())

	snap := tracker.Snapshot()
	startup := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(startup); err != nil {
		log.Printf("failed to publish startup event: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.HTTPAddr != "" {
		srv := web.New(cfg.HTTPAddr, tracker, store, commands)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		go srv.RunFeed(ctx, 100*time.Millisecond)
		defer func() {
			shutCtx, shutCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutCancel()
			srv.Shutdown(shutCtx)
		}()
		log.Printf("http server listening on %s", cfg.HTTPAddr)
	}

	if cfg.Serial.Port != "" {
		con, err := console.Open(cfg.Serial.Port, cfg.Serial.Baud, tracker, commands)
		if err != nil {
			log.Printf("serial console disabled: %v", err)
		} else {
			go func() {
				if err := con.Run(ctx); err != nil {
					log.Printf("[console] %v", err)
				}
			}()
		}
	}

	log.Printf("started: poll=%v broker=%q heartbeat=%v outputs=%v stop_pin=%d",
		cfg.Poll, cfg.MQTT.Broker, cfg.Heartbeat, cfg.GPIO.Outputs, cfg.GPIO.StopPin)

	ticker := time.NewTicker(cfg.Poll)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(loopDeps{
		writer:     writer,
		button:     button,
		publisher:  publisher,
		mqttStatus: mqttStatus,
		tracker:    tracker,
		settings:   store.Current,
		heartbeat:  cfg.Heartbeat,
		now:        time.Now,
		micros:     newMicroClock(time.Now()),
	}, ticker.C, commands, sigCh)
}

// newMicroClock returns a free-running 32-bit microsecond counter that starts
// at zero and wraps roughly every 71.6 minutes.
func newMicroClock(start time.Time) func() logic.Micros {
	return func() logic.Micros {
		return logic.Micros(uint32(time.Since(start).Microseconds()))
	}
}

// nopPublisher is used when no broker is configured.
type nopPublisher struct{}

func (nopPublisher) Publish(mqtt.SessionEvent) error     { return nil }
func (nopPublisher) PublishSystem(mqtt.SystemEvent) error { return nil }
func (nopPublisher) Close() error                         { return nil }
