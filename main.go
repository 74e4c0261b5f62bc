package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"time"

	"confhub/store"
)

func main() {
	if len(os.Args) > 1 {
		cliDB := "hub.db"
		if RunCLI(os.Args[1:], cliDB) {
			return
		}
	}

	cfg := DefaultConfig()
	flag.StringVar(&cfg.BindHost, "bind-address", cfg.BindHost, "interface to bind all ports")
	flag.IntVar(&cfg.ControlPort, "control-port", cfg.ControlPort, "reliable control-channel TCP port")
	flag.IntVar(&cfg.VideoPort, "video-port", cfg.VideoPort, "video datagram UDP port")
	flag.IntVar(&cfg.AudioPort, "audio-port", cfg.AudioPort, "audio datagram UDP port")
	flag.StringVar(&cfg.SpoolDir, "spool-dir", cfg.SpoolDir, "directory for uploaded/shared files")
	flag.Int64Var(&cfg.MaxFileSize, "max-file-size", cfg.MaxFileSize, "upload size limit in bytes (stored in the config but not applied: uploads are always capped at the built-in 100 MiB)")
	flag.IntVar(&cfg.ChatHistorySize, "chat-history-size", cfg.ChatHistorySize, "number of chat messages retained")
	flag.IntVar(&cfg.MaxParticipants, "max-participants", cfg.MaxParticipants, "maximum concurrent participants")
	flag.IntVar(&cfg.HeartbeatSoft, "heartbeat-soft-s", 0, "override: soft heartbeat timeout in seconds (0 = default)")
	flag.IntVar(&cfg.HeartbeatHard, "heartbeat-hard-s", 0, "override: hard heartbeat timeout in seconds (0 = default)")
	flag.StringVar(&cfg.AdminAddr, "admin-addr", cfg.AdminAddr, "bind address:port for the admin/metrics HTTP surface (empty disables it)")
	flag.StringVar(&cfg.AdminDBPath, "admin-db-path", cfg.AdminDBPath, "path to the administrative SQLite database")
	flag.BoolVar(&cfg.MDNSEnable, "mdns-enable", cfg.MDNSEnable, "advertise this hub on the LAN via mDNS")
	flag.StringVar(&cfg.MDNSName, "mdns-name", cfg.MDNSName, "mDNS instance name")
	flag.Float64Var(&cfg.ControlMsgsPerSecond, "control-messages-per-second", cfg.ControlMsgsPerSecond, "per-participant control message rate cap (0 = unlimited)")
	flag.BoolVar(&cfg.LinkPreviewEnable, "link-preview-enable", cfg.LinkPreviewEnable, "fetch OpenGraph previews for URLs posted in chat")
	flag.Float64Var(&cfg.LinkPreviewMaxPerMinute, "link-preview-max-per-minute", cfg.LinkPreviewMaxPerMinute, "hub-wide cap on link-preview fetches per minute (0 = unlimited)")
	flag.IntVar(&cfg.SlowModeSeconds, "slow-mode-seconds", cfg.SlowModeSeconds, "startup chat cooldown in seconds (0 = disabled; a host can change it at runtime with set_slow_mode)")
	testUser := flag.String("test-user", "", "name for a virtual test client that emits synthetic video/audio (empty to disable)")
	flag.Parse()

	if err := os.MkdirAll(cfg.SpoolDir, 0o755); err != nil {
		log.Fatalf("[hub] create spool dir: %v", err)
	}

	st, err := store.New(cfg.AdminDBPath)
	if err != nil {
		log.Fatalf("[store] %v", err)
	}
	defer st.Close()
	seedDefaults(st)

	initBuildInfo(Version)

	adapter := &storeAdapter{st: st}
	hub := NewHub(cfg, adapter, adapter)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		log.Println("[hub] shutting down...")
		cancel()
	}()

	go hub.RunMetricsSampler(ctx, 5*time.Second)

	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := st.Optimize(); err != nil {
					log.Printf("[store] optimize: %v", err)
				}
			}
		}
	}()

	if cfg.MDNSEnable {
		stopMDNS, err := startMDNS(ctx, cfg)
		if err != nil {
			log.Printf("[mdns] %v (continuing without LAN advertisement)", err)
		} else {
			defer stopMDNS()
		}
	}

	if *testUser != "" {
		go RunTestClient(ctx, cfg, *testUser)
	}

	if cfg.AdminAddr != "" {
		api := NewAdminAPI(hub, st)
		go api.Run(ctx, cfg.AdminAddr)
		log.Printf("[api] listening on %s", cfg.AdminAddr)
	}

	log.Printf("[hub] control=%s:%d video=%d audio=%d", cfg.BindHost, cfg.ControlPort, cfg.VideoPort, cfg.AudioPort)
	if err := hub.Serve(ctx); err != nil {
		log.Fatalf("[hub] %v", err)
	}
}

// seedDefaults writes factory-default settings on first run.
func seedDefaults(st *store.Store) {
	defaults := [][2]string{
		{"hub_name", "confhub"},
	}
	for _, kv := range defaults {
		if _, ok, err := st.GetSetting(kv[0]); err == nil && !ok {
			if err := st.SetSetting(kv[0], kv[1]); err != nil {
				log.Printf("[store] seed %q: %v", kv[0], err)
			}
		}
	}
}

// storeAdapter implements moderation.go's AuditRecorder and BanRecorder on
// top of the administrative store, keeping the Moderator/Hub decoupled
// from the concrete persistence layer.
type storeAdapter struct {
	st *store.Store
}

func (a *storeAdapter) RecordAudit(actorID uint32, actorName, action, target, detail string) {
	if err := a.st.InsertAuditLog(int(actorID), actorName, action, target, detail); err != nil {
		log.Printf("[audit] insert: %v", err)
	}
}

func (a *storeAdapter) RecordBan(name, reason string) {
	if _, err := a.st.InsertBan(name, reason); err != nil {
		log.Printf("[ban] insert: %v", err)
	}
}

func (a *storeAdapter) IsBanned(name string) (string, bool) {
	banned, reason, err := a.st.IsBanned(name)
	if err != nil {
		log.Printf("[ban] lookup: %v", err)
		return "", false
	}
	return reason, banned
}
