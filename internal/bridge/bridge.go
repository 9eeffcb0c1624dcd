package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/lmittmann/tint"
	"github.com/texelworks/painterlink/internal/core"
	"github.com/texelworks/painterlink/internal/journal"
	"github.com/texelworks/painterlink/internal/protocol"
)

// Bridge wires the connection manager, dispatcher, notifier, supervisor and
// event journal into one running unit. It owns startup order, the signal
// handler and shutdown.
type Bridge struct {
	cfg        *core.Configuration
	registry   *Registry
	server     *Server
	notifier   *Notifier
	supervisor *Supervisor
	traffic    *TrafficBroadcaster
	dispatcher *Dispatcher
	journal    *journal.Journal

	logLevel *slog.LevelVar

	ctx          context.Context
	cancel       context.CancelFunc
	shutdownOnce sync.Once
}

func New(cfg *core.Configuration, registry *Registry) *Bridge {
	ctx, cancel := context.WithCancel(context.Background())
	return &Bridge{
		cfg:      cfg,
		registry: registry,
		traffic:  NewTrafficBroadcaster(cfg.HistorySize),
		logLevel: new(slog.LevelVar),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Registry returns the command registry, for late registrations during setup.
func (b *Bridge) Registry() *Registry { return b.registry }

// Traffic returns the inbound traffic broadcaster.
func (b *Bridge) Traffic() *TrafficBroadcaster { return b.traffic }

// Run starts the bridge and blocks until a termination signal or Shutdown.
func (b *Bridge) Run() error {
	b.setupLogging()

	j, err := journal.Open(b.cfg.JournalPath)
	if err != nil {
		return fmt.Errorf("failed to open event journal: %w", err)
	}
	b.journal = j

	b.server = NewServer(b.cfg.ListenHost, b.cfg.ListenPort)
	b.notifier = NewNotifier(b.server)
	b.dispatcher = NewDispatcher(b.registry, b.server, b.traffic)

	b.server.OnMessage(b.dispatcher.HandleMessage)
	b.server.OnConnect(func(peer *Peer) {
		b.journal.LogPeerEvent(peer.ID.String(), "connect",
			fmt.Sprintf("Peer connected from %s", peer.RemoteAddr))
	})
	b.server.OnDisconnect(b.handleDisconnect)

	if err := b.server.Start(); err != nil {
		b.journal.Close()
		return err
	}

	port := b.server.Port()
	b.journal.LogBridgeEvent("start",
		fmt.Sprintf("Bridge listening on %s:%d (PID: %d)", b.cfg.ListenHost, port, os.Getpid()))

	// The supervisor only runs when launch parameters are present. Without
	// them the bridge waits for an externally started peer to dial in.
	if b.cfg.Companion.Python != "" && b.cfg.Companion.Startup != "" {
		b.supervisor = NewSupervisor(b.cfg.Companion, port)
		b.supervisor.SetEventLogger(func(eventType, details string) {
			b.journal.LogCompanionEvent(eventType, details)
		})
		if err := b.supervisor.Bootstrap(); err != nil {
			slog.Error("Failed to start companion", "error", err)
			b.journal.LogCompanionEvent("companion_failed", err.Error())
		}
	} else {
		slog.Info("No companion configured, waiting for an external peer", "port", port)
	}

	go b.watchConfig()

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-shutdownChan:
		slog.Info("Received signal, shutting down", "signal", sig)
	case <-b.ctx.Done():
	}

	b.Shutdown()
	return nil
}

// setupLogging installs the tint handler. The level variable stays live so
// debug tracing can be toggled at runtime.
func (b *Bridge) setupLogging() {
	if b.cfg.Debug {
		b.logLevel.Set(slog.LevelDebug)
	} else {
		b.logLevel.Set(slog.LevelInfo)
	}

	handler := tint.NewHandler(os.Stderr, &tint.Options{
		Level:      b.logLevel,
		TimeFormat: time.DateTime,
	})
	slog.SetDefault(slog.New(handler))
}

// SetDebug toggles verbose envelope tracing at runtime and reports the new
// state.
func (b *Bridge) SetDebug(enabled bool) bool {
	if enabled {
		b.logLevel.Set(slog.LevelDebug)
	} else {
		b.logLevel.Set(slog.LevelInfo)
	}
	slog.Info("Debug logging toggled", "enabled", enabled)
	return enabled
}

// DebugEnabled reports whether debug tracing is currently on.
func (b *Bridge) DebugEnabled() bool {
	return b.logLevel.Level() <= slog.LevelDebug
}

// Notify forwards one outbound command to the connected peer, fire and forget.
func (b *Bridge) Notify(method string, params protocol.Params) {
	if b.notifier == nil {
		// Not running yet; nothing to deliver to
		slog.Warn("Bridge not running, dropping notification", "method", method)
		return
	}
	b.notifier.Notify(method, params)
}

// Outbound commands sent by the host application. The peer treats each as a
// standalone event; none of them produce a reply the bridge waits for.

// NotifyProjectOpened announces that a project finished loading.
func (b *Bridge) NotifyProjectOpened(projectPath string) {
	b.Notify("PROJECT_OPENED", protocol.Params{"projectPath": projectPath})
}

// NotifyNewProjectCreated announces that a new unsaved project exists.
func (b *Bridge) NotifyNewProjectCreated(projectPath string) {
	b.Notify("NEW_PROJECT_CREATED", protocol.Params{"projectPath": projectPath})
}

// NotifyDisplayMenu asks the peer to show its menu at a screen position.
func (b *Bridge) NotifyDisplayMenu(x, y float64) {
	b.Notify("DISPLAY_MENU", protocol.Params{
		"clickedPosition": map[string]any{"x": x, "y": y},
	})
}

// NotifyExportFinished reports the result of a map export started by the peer.
func (b *Bridge) NotifyExportFinished(mapInfos any) {
	b.Notify("EXPORT_FINISHED", protocol.Params{"map_infos": mapInfos})
}

// NotifyQuit tells the peer the host application is closing.
func (b *Bridge) NotifyQuit() {
	b.Notify("QUIT", protocol.Params{})
}

// handleDisconnect journals the loss and hands recovery to the supervisor.
func (b *Bridge) handleDisconnect(peerID uuid.UUID) {
	b.journal.LogPeerEvent(peerID.String(), "disconnect", "Peer connection lost")
	if b.supervisor != nil {
		go b.supervisor.HandleDisconnect()
	}
}

// watchConfig watches the config file and re-applies the debug flag on change.
// Structural settings (port, companion launch) need a restart.
func (b *Bridge) watchConfig() {
	configPath := b.cfg.ConfigFile()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Error("Failed to create config file watcher", "error", err)
		return
	}

	if err := watcher.Add(configPath); err != nil {
		// Running without a config file is fine, just no live reload
		slog.Debug("Config file not watchable", "error", err, "path", configPath)
		watcher.Close()
		return
	}

	var reloadTimer *time.Timer
	var reloadMutex sync.Mutex

	defer watcher.Close()

	for {
		select {
		case <-b.ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}

			// Editors using atomic writes remove the original from the watch
			// list; re-add after RENAME, REMOVE or CREATE
			if event.Op&(fsnotify.Rename|fsnotify.Remove|fsnotify.Create) != 0 {
				go func() {
					for attempt := 0; attempt < 5; attempt++ {
						if attempt > 0 {
							delay := time.Duration(10<<uint(attempt-1)) * time.Millisecond
							time.Sleep(delay)
						}
						watcher.Remove(configPath)
						if err := watcher.Add(configPath); err == nil {
							return
						} else if attempt == 4 {
							slog.Error("Failed to re-add config watch", "error", err, "path", configPath)
						}
					}
				}()
			}

			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}

			reloadMutex.Lock()
			// Debounce: wait 500ms after last change before reloading
			if reloadTimer != nil {
				reloadTimer.Stop()
			}
			reloadTimer = time.AfterFunc(500*time.Millisecond, b.reloadConfig)
			reloadMutex.Unlock()

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			slog.Error("Config file watcher error", "error", err)
		}
	}
}

func (b *Bridge) reloadConfig() {
	cfg, err := core.LoadConfig(b.cfg.ConfigPath)
	if err != nil {
		slog.Error("Failed to reload config, keeping current settings", "error", err)
		return
	}

	if cfg.Debug != b.DebugEnabled() {
		b.SetDebug(cfg.Debug)
	}
	b.cfg.Debug = cfg.Debug
	slog.Info("Configuration reloaded")
}

// Shutdown stops the companion, closes the listener and flushes the journal.
// Safe to call more than once.
func (b *Bridge) Shutdown() {
	b.shutdownOnce.Do(func() {
		b.cancel()

		if b.supervisor != nil {
			b.supervisor.Shutdown()
		}
		if b.server != nil {
			b.server.Stop()
		}
		if b.journal != nil {
			b.journal.LogBridgeEvent("stop", fmt.Sprintf("Bridge stopped (PID: %d)", os.Getpid()))
			b.journal.Flush()
			b.journal.Close()
		}
		slog.Info("Bridge stopped")
	})
}
