package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Fooderapp/WheelerHost-V1/pkg/audioingest"
	"github.com/Fooderapp/WheelerHost-V1/pkg/bridge"
	"github.com/Fooderapp/WheelerHost-V1/pkg/clock"
	"github.com/Fooderapp/WheelerHost-V1/pkg/config"
	"github.com/Fooderapp/WheelerHost-V1/pkg/diag"
	"github.com/Fooderapp/WheelerHost-V1/pkg/diagserver"
	"github.com/Fooderapp/WheelerHost-V1/pkg/feedback"
	"github.com/Fooderapp/WheelerHost-V1/pkg/logging"
	"github.com/Fooderapp/WheelerHost-V1/pkg/sessionloop"
	"github.com/Fooderapp/WheelerHost-V1/pkg/translator"
	"github.com/Fooderapp/WheelerHost-V1/pkg/udpendpoint"
)

// WheelerHostDaemon owns the daemon's component lifecycle: the UDP
// endpoint, the sidecar supervisor, the audio helper, the session
// loop, and the diagnostics server, under one Start/Stop pair.
type WheelerHostDaemon struct {
	cfg    *config.Config
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	endpoint *udpendpoint.Endpoint
	bridge   *bridge.Supervisor
	audio    *audioingest.Ingestor
	diag     *diag.Counters
	loop     *sessionloop.Loop
	diagSrv  *diagserver.Server

	errMu  sync.Mutex
	runErr error

	modeMu  sync.Mutex
	ffbMode string
}

// Err returns the error that caused the session loop to exit, or nil
// if the daemon shut down cleanly. main uses this to pick the process
// exit code.
func (d *WheelerHostDaemon) Err() error {
	d.errMu.Lock()
	defer d.errMu.Unlock()
	return d.runErr
}

// NewWheelerHostDaemon wires every component from cfg but starts
// nothing; call Start to begin serving.
func NewWheelerHostDaemon(cfg *config.Config) (*WheelerHostDaemon, error) {
	ctx, cancel := context.WithCancel(context.Background())

	clk := clock.New()
	counters := diag.New()

	endpoint, err := udpendpoint.Listen(cfg.UDP.Port, counters)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to bind UDP endpoint: %w", err)
	}
	if warn := endpoint.TuneWarning(); warn != nil {
		logging.Warn("daemon", fmt.Sprintf("socket buffer tuning failed, continuing with OS defaults: %v", warn))
	}

	target, err := bridge.ParseTarget(cfg.Bridge.Target)
	if err != nil {
		cancel()
		endpoint.Close()
		return nil, fmt.Errorf("invalid bridge target: %w", err)
	}

	bridgeSup := bridge.New(bridge.Config{
		Exe:         cfg.Bridge.Exe,
		Target:      target,
		KeepaliveMs: cfg.Bridge.KeepaliveMs,
	}, clk, counters)

	audio := audioingest.New(cfg.Audio.Helper, counters)

	loopCfg := sessionloop.Config{
		TickHz:        cfg.Session.TickHz,
		IdleTimeoutMs: cfg.Session.IdleTimeoutMs,
	}
	trCfg := translator.Config{
		Expo:       cfg.Translator.Expo,
		Deadzone:   cfg.Translator.Deadzone,
		LatchTicks: cfg.Translator.LatchTicks,
	}
	fbCfg := feedback.Config{
		Mode:    feedback.ParseMode(cfg.FFB.Mode),
		StaleMs: cfg.FFB.StaleMs,
		GainL:   cfg.FFB.GainL,
		GainR:   cfg.FFB.GainR,
	}

	loop := sessionloop.New(loopCfg, endpoint, bridgeSup, audio, clk, trCfg, fbCfg, counters)

	d := &WheelerHostDaemon{
		cfg:      cfg,
		ctx:      ctx,
		cancel:   cancel,
		endpoint: endpoint,
		bridge:   bridgeSup,
		audio:    audio,
		diag:     counters,
		loop:     loop,
		ffbMode:  cfg.FFB.Mode,
	}

	d.diagSrv = diagserver.New(cfg.Diag.ListenAddr, d.status, d.telemetry, d.setFFBMode, counters)

	return d, nil
}

// setFFBMode applies a runtime mode change to the session loop and
// remembers it for status reporting.
func (d *WheelerHostDaemon) setFFBMode(mode feedback.Mode) {
	d.loop.SetFFBMode(mode)
	d.modeMu.Lock()
	d.ffbMode = mode.String()
	d.modeMu.Unlock()
}

func (d *WheelerHostDaemon) status() diagserver.Status {
	snap := d.loop.Snapshot()
	d.modeMu.Lock()
	mode := d.ffbMode
	d.modeMu.Unlock()
	return diagserver.Status{
		SessionActive:  snap.SessionActive,
		Background:     snap.Background,
		BridgeReady:    d.bridge.Ready(),
		BridgeTarget:   d.cfg.Bridge.Target,
		BridgeRestarts: d.bridge.RestartCount(),
		FFBMode:        mode,
	}
}

func (d *WheelerHostDaemon) telemetry() diagserver.Telemetry {
	snap := d.loop.Snapshot()
	return diagserver.Telemetry{
		State:    snap.State,
		Feedback: snap.Feedback,
		Audio:    snap.Audio,
	}
}

// Start launches every background component. The audio helper and
// sidecar supervisor are started first so the session loop's first
// tick has something to push to.
func (d *WheelerHostDaemon) Start() error {
	if err := d.audio.Start(); err != nil {
		return fmt.Errorf("failed to start audio helper: %w", err)
	}

	d.bridge.Start()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.loop.Run(d.ctx); err != nil {
			logging.Error("daemon", fmt.Sprintf("session loop exited: %v", err))
			d.errMu.Lock()
			d.runErr = err
			d.errMu.Unlock()
			d.cancel()
		}
	}()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := <-d.diagSrv.Start(); err != nil {
			logging.Error("daemon", fmt.Sprintf("diagnostics server error: %v", err))
		}
	}()

	return nil
}

// Wait blocks until ctx is canceled, either by Stop or by the session
// loop reporting an unrecoverable sidecar failure.
func (d *WheelerHostDaemon) Wait() {
	<-d.ctx.Done()
}

// Stop gracefully tears down the daemon: the diagnostics server first
// (so no new request starts mid-shutdown), then cancels the session
// loop, which unwinds its own components in order.
func (d *WheelerHostDaemon) Stop() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.diagSrv.Shutdown(shutdownCtx); err != nil {
		logging.Warn("daemon", fmt.Sprintf("diagnostics server shutdown: %v", err))
	}

	d.cancel()
	d.wg.Wait()
	return nil
}
