package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"memtrigger/internal/api"
	"memtrigger/internal/channel"
	"memtrigger/internal/config"
	"memtrigger/internal/hotkey"
	"memtrigger/internal/journal"
	"memtrigger/internal/memory"
	"memtrigger/internal/monitor"
	"memtrigger/internal/osutils"
	"memtrigger/internal/tray"
)

// historyRetention is how long journal entries are kept.
const historyRetention = 30 * 24 * time.Hour

func runService(cfgMgr *config.Manager) {
	log.Println("MemTrigger Service starting...")
	cfg := cfgMgr.Get()

	if err := osutils.EnableDebugPrivilege(); err != nil {
		log.Printf("Warning: %v", err)
		if !osutils.IsAdmin() {
			log.Println("Note: Reading protected processes may require running as Administrator")
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Input override channel
	ch := newChannel(cfg)
	if !ch.Initialize() {
		log.Printf("Warning: %v; reactions will have no effect", channel.ErrChannelUnavailable)
	}
	defer ch.Close()

	// Reaction journal
	var hist *journal.Journal
	if cfg.General.HistoryPath != "" {
		j, err := journal.Open(cfg.General.HistoryPath)
		if err != nil {
			log.Printf("Warning: history disabled: %v", err)
		} else {
			hist = j
			defer hist.Close()
			if n, err := hist.Prune(ctx, time.Now().Add(-historyRetention)); err == nil && n > 0 {
				log.Printf("History: Pruned %d old entries", n)
			}
		}
	}

	// Tray instance
	t := tray.New("MemTrigger - idle")

	// Supervisor events are handed to a single consumer so the observer never
	// blocks a monitor goroutine.
	var apiServer atomic.Pointer[api.Server]
	events := make(chan monitor.Event, 256)
	observer := func(ev monitor.Event) {
		if srv := apiServer.Load(); srv != nil {
			srv.Broadcast(ev)
		}
		select {
		case events <- ev:
		default:
			log.Printf("Service: Event queue full, dropping %s event", ev.Type)
		}
	}

	resolver, err := memory.NewResolver(memory.DefaultModuleCacheSize)
	if err != nil {
		log.Fatalf("Failed to create resolver: %v", err)
	}
	sup := monitor.NewSupervisor(resolver, ch, observer)

	bindings, err := config.ParseBindings(cfg, cfgMgr.Dir())
	if err != nil {
		log.Printf("Warning: %v", err)
	}
	for _, b := range bindings {
		if err := sup.Add(b); err != nil {
			log.Printf("Warning: %v", err)
		}
	}
	log.Printf("Service: Loaded %d binding(s)", len(bindings))

	// wantRunning is cleared by stop/panic so the attach loop stays idle
	var wantRunning atomic.Bool
	wantRunning.Store(true)

	var attachMu sync.Mutex
	attach := func() error {
		attachMu.Lock()
		defer attachMu.Unlock()
		if sup.Attached() != nil {
			return nil
		}
		p, err := openTarget(cfgMgr.Get())
		if err != nil {
			return err
		}
		sup.Attach(p)
		return nil
	}

	start := func() error {
		wantRunning.Store(true)
		if err := attach(); err != nil {
			return fmt.Errorf("%w: %v", monitor.ErrNotAttached, err)
		}
		return sup.StartAll()
	}

	stop := func() {
		wantRunning.Store(false)
		sup.StopAll()
	}

	panicRelease := func() {
		log.Println("EMERGENCY: Releasing all inputs")
		ch.SetActive(false)
		stop()
	}

	var toggleItem int
	updateStatus := func() {
		running := sup.AnyRunning()
		status := "idle"
		if p := sup.Attached(); p != nil {
			status = fmt.Sprintf("attached to pid %d", p.PID())
			if running {
				status = fmt.Sprintf("monitoring pid %d", p.PID())
			}
		}
		t.SetStatus("MemTrigger - "+status, running)
		if running {
			t.SetItemTitle(toggleItem, "Stop monitoring")
		} else {
			t.SetItemTitle(toggleItem, "Start monitoring")
		}
	}

	toggle := func() {
		if sup.AnyRunning() {
			log.Println("Service: Stopping monitors")
			stop()
		} else {
			log.Println("Service: Starting monitors")
			if err := start(); err != nil {
				log.Printf("Service: %v (will keep retrying)", err)
			}
		}
		updateStatus()
	}

	// Tray menu
	toggleItem = t.AddMenuItem("Stop monitoring", toggle)
	t.AddMenuItem("Release inputs", func() {
		panicRelease()
		updateStatus()
	})
	t.AddMenuItem("Detach", func() {
		wantRunning.Store(false)
		sup.Detach()
		updateStatus()
	})

	t.AddSeparator()

	t.AddMenuItem("Quit", func() {
		t.Stop()
	})

	go func() {
		for {
			select {
			case ev := <-events:
				if hist != nil {
					if err := hist.Record(ctx, ev); err != nil {
						log.Printf("History: %v", err)
					}
				}
				updateStatus()
			case <-ctx.Done():
				return
			}
		}
	}()

	// Attach loop: finds the process, and finds it again after it restarts
	go func() {
		interval := time.Duration(cfgMgr.Get().General.AttachRetryMs) * time.Millisecond
		if interval <= 0 {
			interval = time.Second
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		var lastErr string
		for {
			if wantRunning.Load() && sup.Attached() == nil {
				if err := attach(); err != nil {
					if err.Error() != lastErr {
						log.Printf("Service: Waiting for %s: %v", cfgMgr.Get().General.ProcessName, err)
						lastErr = err.Error()
					}
				} else {
					lastErr = ""
					if err := sup.StartAll(); err != nil {
						log.Printf("Service: %v", err)
					}
				}
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	// Swap bindings in when the configuration changes (API or file edit)
	cfgMgr.RegisterChangeCallback(func() {
		bindings, err := config.ParseBindings(cfgMgr.Get(), cfgMgr.Dir())
		if err != nil {
			log.Printf("Config: %v", err)
		}
		if err := sup.Replace(bindings); err != nil {
			log.Printf("Config: %v", err)
		}
		log.Printf("Config: Applied %d binding(s)", len(bindings))
		updateStatus()
	})

	if cfg.General.WatchConfig {
		go func() {
			if err := cfgMgr.Watch(ctx); err != nil {
				log.Printf("Config watch error: %v", err)
			}
		}()
	}

	// Start API server if enabled
	if cfg.General.APIEnabled {
		opts := api.Options{
			Config:     cfgMgr,
			Supervisor: sup,
			Attach:     attach,
			Start:      start,
			Stop:       func() { wantRunning.Store(false) },
			Release:    panicRelease,
			Input:      ch,
		}
		if hist != nil {
			opts.History = hist
		}
		srv := api.NewServer(opts)
		apiServer.Store(srv)

		go func() {
			if err := srv.Start(cfg.General.APIPort); err != nil {
				log.Printf("API server error: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
			defer done()
			srv.Shutdown(shutdownCtx)
		}()
	}

	// Hotkey manager
	hkMgr := hotkey.NewManager()
	if err := hkMgr.Register(cfg.General.ToggleHotkey, toggle); err != nil {
		log.Printf("Warning: failed to register toggle hotkey: %v", err)
	}
	if err := hkMgr.Register(cfg.General.PanicHotkey, func() {
		panicRelease()
		updateStatus()
	}); err != nil {
		log.Printf("Warning: failed to register panic hotkey: %v", err)
	}
	if err := hkMgr.Start(); err != nil {
		log.Printf("Warning: Hotkey Engine failed to start: %v", err)
	}
	defer hkMgr.Stop()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("Shutting down...")
		t.Stop()
	}()

	log.Println("MemTrigger Service running. Press Ctrl+C to stop.")
	t.Run()

	// Nothing may stay overridden after exit
	sup.Detach()
	ch.SetActive(false)
	cancel()
}
