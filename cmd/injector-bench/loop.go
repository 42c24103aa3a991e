package main

import (
	"fmt"
	"log"
	"os"
	"syscall"
	"time"

	"github.com/sweeney/injector-bench/internal/config"
	"github.com/sweeney/injector-bench/internal/gpio"
	"github.com/sweeney/injector-bench/internal/logic"
	"github.com/sweeney/injector-bench/internal/mqtt"
	"github.com/sweeney/injector-bench/internal/status"
)

// loopDeps are the collaborators of the control loop. tracker and
// mqttStatus may be nil.
type loopDeps struct {
	writer     gpio.Writer
	button     gpio.Reader
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus
	tracker    *status.Tracker
	settings   func() config.Settings
	heartbeat  time.Duration

	now    func() time.Time   // wall clock for timestamps and heartbeat
	micros func() logic.Micros // pulse clock, sampled once per iteration
}

// runLoop owns the session and every output write. Other goroutines reach
// it only through commands.
func runLoop(d loopDeps, tick <-chan time.Time, commands <-chan logic.Command, sig <-chan os.Signal) error {
	sched, err := logic.NewScheduler(logic.Batch, logic.MaxChannels)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	sess := logic.NewSession(sched)

	lastHeartbeat := d.now()
	lastStatus := lastHeartbeat
	buttonHeld := false

	for {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			d.apply(sess, sess.Stop(d.micros(), logic.ReasonShutdown))

			event := mqtt.SystemEvent{
				Timestamp: d.now(),
				Event:     "SHUTDOWN",
				Reason:    signalName,
				Retained:  true,
			}
			if d.tracker != nil {
				d.refreshConnection()
				event.RawPayload = status.FormatStatusEvent(d.tracker.Snapshot(), "SHUTDOWN", signalName)
			}
			if err := d.publisher.PublishSystem(event); err != nil {
				log.Printf("failed to queue shutdown event: %v", err)
			}
			return nil

		case cmd := <-commands:
			now := d.micros()
			if cmd.Stop {
				if sess.Running() {
					log.Printf("stop requested via %s", cmd.Source)
				}
				d.apply(sess, sess.Stop(now, logic.ReasonCommand))
				continue
			}
			events, err := sess.Start(cmd.Profile, d.settings().Logic(), now)
			if err != nil {
				log.Printf("start %s via %s rejected: %v", cmd.Profile, cmd.Source, err)
				continue
			}
			d.apply(sess, events)

		case <-tick:
			now := d.micros()

			pressed, err := d.button.Read()
			if err != nil {
				log.Printf("stop button read error: %v", err)
			} else {
				if pressed && !buttonHeld && sess.Running() {
					log.Printf("stop button pressed")
					d.apply(sess, sess.Stop(now, logic.ReasonButton))
				}
				buttonHeld = pressed
			}

			if events := sess.Tick(now); len(events) > 0 {
				d.apply(sess, events)
			}

			if d.tracker == nil {
				continue
			}
			wall := d.now()
			if wall.Sub(lastStatus) >= time.Second {
				d.refreshConnection()
				lastStatus = wall
			}
			if d.heartbeat > 0 && wall.Sub(lastHeartbeat) >= d.heartbeat {
				lastHeartbeat = wall
				d.refreshConnection()
				snap := d.tracker.Snapshot()
				log.Printf("heartbeat: uptime=%v sessions=%d completed=%d aborted=%d",
					snap.Uptime().Truncate(time.Second), snap.Counts.Sessions, snap.Counts.Completed, snap.Counts.Aborted)
				hb := mqtt.SystemEvent{
					Timestamp:  wall,
					Event:      "HEARTBEAT",
					RawPayload: status.FormatStatusEvent(snap, "HEARTBEAT", ""),
				}
				if err := d.publisher.PublishSystem(hb); err != nil {
					log.Printf("heartbeat not queued: %v", err)
				}
			}
		}
	}
}

// apply writes channel levels, publishes lifecycle events and refreshes the
// tracker. Write and publish failures are logged; they never stop the loop.
// d.publisher must not block: main wraps the broker in an mqtt.Queue.
func (d loopDeps) apply(sess *logic.Session, events []logic.Event) {
	var ts time.Time
	for _, e := range events {
		if e.Type == logic.EventChannel {
			if err := d.writer.Set(e.Channel, e.High); err != nil {
				log.Printf("output write error: %v", err)
			}
			continue
		}
		if !mqtt.Publishable(e.Type) {
			continue
		}
		if ts.IsZero() {
			ts = d.now()
		}
		switch e.Type {
		case logic.EventStarted:
			log.Printf("session started: profile=%s countdown=%ds cycle=%v open=%v",
				e.Profile, e.Countdown, e.Plan.Cycle, e.Plan.Open)
		case logic.EventStopped:
			log.Printf("session stopped: profile=%s reason=%s remaining=%ds", e.Profile, e.Reason, e.Countdown)
		case logic.EventSweep:
			log.Printf("leak sweep %d: cycle=%v open=%v", e.Sweep, e.Plan.Cycle, e.Plan.Open)
		}
		if err := d.publisher.Publish(mqtt.SessionEvent{Timestamp: ts, Event: e}); err != nil {
			log.Printf("%s not queued: %v", e.Type, err)
		}
	}

	if d.tracker == nil {
		return
	}
	d.tracker.Record(events)
	d.tracker.UpdateSession(sessionView(sess))
}

func (d loopDeps) refreshConnection() {
	if d.tracker != nil && d.mqttStatus != nil {
		d.tracker.SetMQTTConnected(d.mqttStatus.IsConnected())
	}
}

func sessionView(sess *logic.Session) status.Session {
	return status.Session{
		Running:       sess.Running(),
		Profile:       sess.Kind(),
		Countdown:     sess.Countdown(),
		Levels:        sess.Levels(),
		Enabled:       sess.Enabled(),
		ActiveChannel: sess.ActiveChannel(),
		FiringMode:    sess.FiringMode(),
		Plan:          sess.Plan(),
		SweepIndex:    sess.SweepIndex(),
	}
}
