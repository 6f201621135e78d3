package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/viper"

	"github.com/consultd/consultd/internal/boundary"
	"github.com/consultd/consultd/internal/configsvc"
	"github.com/consultd/consultd/internal/conversation"
	"github.com/consultd/consultd/internal/eventhub"
	"github.com/consultd/consultd/internal/lifecycle"
	"github.com/consultd/consultd/internal/model"
	"github.com/consultd/consultd/internal/orchestrator"
	"github.com/consultd/consultd/internal/provider"
	"github.com/consultd/consultd/internal/rag"
	"github.com/consultd/consultd/internal/store"
)

const binaryName = "consultd"

const sweepInterval = time.Minute

func runDaemon() error {
	log := newLogger()

	dir, err := lifecycle.StateDir()
	if err != nil {
		return fmt.Errorf("resolve state dir: %w", err)
	}

	port := viper.GetInt("port")
	if port == 0 {
		port, err = lifecycle.PickPort()
		if err != nil {
			return fmt.Errorf("pick port: %w", err)
		}
	}

	ctx := context.Background()

	st, err := store.Open(ctx, filepath.Join(dir, "consultd.db"), log)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	hub := eventhub.New(log)
	convSvc := conversation.New(st, &hubNotifier{hub: hub}, log)

	cfgNotify := configsvc.Notifier(func(payload interface{}) {
		hub.Broadcast(eventhub.EventConfigUpdated, payload)
	})
	cfgSvc := configsvc.New(st, cfgNotify)

	embedder := rag.NewEmbedder(viper.GetString("embed-url"), &http.Client{Timeout: 30 * time.Second})
	ragPipeline := rag.New(st, embedder, time.Now)

	metrics := provider.NewMetrics("consultd")
	adapter := provider.New(credentialsLookup(cfgSvc), metrics)

	orch := orchestrator.New(convSvc, adapter, ragPipeline, cfgSvc, provider.Exists)

	var token string
	var b *boundary.Boundary

	mgr := &lifecycle.Manager{
		Log:         log,
		IdleClients: hub.ClientCount,
		OnAcquire: func(info model.DaemonLock) {
			token = info.Token
			log.WithField("port", info.Port).Info("daemon lock acquired")
		},
	}

	mgr.Stages = []lifecycle.Stage{
		{
			Name: "boundary",
			Run: func(ctx context.Context) error {
				wsServer := eventhub.NewServer(hub, token, log)
				registerOps(wsServer, orch, convSvc, cfgSvc)
				b = boundary.New(boundary.Dependencies{
					Token:         token,
					Config:        cfgSvc,
					Conversations: convSvc,
					Orchestrator:  orch,
					RAG:           ragPipeline,
					Documents:     st,
					Hub:           hub,
					WSServer:      wsServer,
					Provider:      adapter,
					EmbedURL:      viper.GetString("embed-url"),
					HTTPClient:    &http.Client{Timeout: 5 * time.Second},
					StaticDir:     viper.GetString("static-dir"),
					Log:           log,
				})
				return b.Start(ctx, fmt.Sprintf("127.0.0.1:%d", port))
			},
			Stop: func(ctx context.Context) error {
				if b == nil {
					return nil
				}
				return b.Stop(ctx)
			},
		},
		{
			Name: "conversation-sweeper",
			Run: func(ctx context.Context) error {
				return convSvc.RunSweeper(ctx, sweepInterval)
			},
		},
	}

	info, err := mgr.Run(ctx, dir, binaryName, port)
	if err != nil {
		return err
	}
	log.WithFields(map[string]interface{}{
		"pid":  info.PID,
		"port": info.Port,
	}).Info("daemon stopped")
	return nil
}

// credentialsLookup adapts configsvc's provider table to
// provider.CredentialsLookup, mapping the adapter's Family enum onto the
// config's provider-name keys (spec §4.F/§4.D).
func credentialsLookup(cfgSvc *configsvc.Service) provider.CredentialsLookup {
	return func(family provider.Family) (provider.Credentials, bool) {
		key := familyKey(family)
		if key == "" {
			return provider.Credentials{}, false
		}
		cfg, err := cfgSvc.Get(context.Background())
		if err != nil {
			return provider.Credentials{}, false
		}
		pc, ok := cfg.Providers[key]
		if !ok || !pc.Enabled || pc.APIKey == "" {
			return provider.Credentials{}, false
		}
		return provider.Credentials{APIKey: pc.APIKey, BaseURL: pc.BaseURL}, true
	}
}

func familyKey(family provider.Family) string {
	switch family {
	case provider.FamilyDeepSeek:
		return "deepseek"
	case provider.FamilyOpenAI:
		return "openai"
	default:
		return ""
	}
}

// runUninstall sends SIGTERM to the PID named in the lock file (the
// process's executable is not checked against the daemon's) and removes
// the state directory's lock file so a subsequent start doesn't see a
// stale entry.
func runUninstall() error {
	log := newLogger()

	dir, err := lifecycle.StateDir()
	if err != nil {
		return fmt.Errorf("resolve state dir: %w", err)
	}
	lockPath := filepath.Join(dir, "daemon.lock")

	data, err := os.ReadFile(lockPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info("no daemon lock found, nothing to uninstall")
			return nil
		}
		return fmt.Errorf("read lock file: %w", err)
	}

	var info model.DaemonLock
	if err := json.Unmarshal(data, &info); err != nil {
		return fmt.Errorf("parse lock file: %w", err)
	}

	proc, err := os.FindProcess(info.PID)
	if err == nil {
		if sigErr := proc.Signal(syscall.SIGTERM); sigErr == nil {
			log.WithField("pid", info.PID).Info("sent shutdown signal to running daemon")
			time.Sleep(2 * time.Second)
		}
	}

	if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove lock file: %w", err)
	}
	log.Info("daemon uninstalled")
	return nil
}

// runPrintConfig prints the effective, masked daemon config without
// starting the daemon (spec.md line 223's --config mode).
func runPrintConfig() error {
	log := newLogger()

	dir, err := lifecycle.StateDir()
	if err != nil {
		return fmt.Errorf("resolve state dir: %w", err)
	}

	ctx := context.Background()
	st, err := store.Open(ctx, filepath.Join(dir, "consultd.db"), log)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	cfgSvc := configsvc.New(st, nil)
	cfg, err := cfgSvc.Get(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(configsvc.Masked(cfg))
}
