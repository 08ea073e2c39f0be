package main

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"golang.org/x/time/rate"

	"relaychat/server/internal/captcha"
	"relaychat/server/internal/convindex"
	"relaychat/server/internal/frame"
	"relaychat/server/internal/media"
	"relaychat/server/internal/ops"
	"relaychat/server/internal/presence"
	"relaychat/server/internal/uploads"
	"relaychat/server/store"
)

func main() {
	// Check for CLI subcommands before parsing flags.
	if len(os.Args) > 1 {
		cliDB := "relaychat.db"
		if RunCLI(os.Args[1:], cliDB) {
			return
		}
	}

	addr := flag.String("addr", ":7443", "TCP listen address for the session gateway")
	opsAddr := flag.String("ops-addr", ":8080", "ambient HTTP health/status listen address (empty to disable)")
	dbPath := flag.String("db", "relaychat.db", "SQLite database path")
	mediaDir := flag.String("media-dir", "media", "directory for uploaded originals/thumbnails/avatars (relative to -db directory unless absolute)")
	keyFile := flag.String("key-file", "", "path to a 32-byte AEAD pre-shared key (generated and written here on first run if absent)")
	uploadIdleTimeout := flag.Duration("upload-idle-timeout", UploadIdleTimeout, "how long an in-flight chunked upload may sit idle before its partial file is swept")
	rateLimit := flag.Float64("rate-limit", 50, "maximum requests per second per connection")
	rateBurst := flag.Int("rate-burst", 100, "burst allowance for -rate-limit")
	ffmpegTimeout := flag.Duration("ffmpeg-timeout", 10*time.Second, "timeout for each ffmpeg/ffprobe subprocess call")
	flag.Parse()

	st, err := store.New(*dbPath)
	if err != nil {
		slog.Error("open store", "err", err)
		os.Exit(1)
	}
	defer st.Close()

	mediaBase := *mediaDir
	if !filepath.IsAbs(mediaBase) {
		mediaBase = filepath.Join(filepath.Dir(*dbPath), mediaBase)
	}
	mediaStore, err := media.NewStore(mediaBase)
	if err != nil {
		slog.Error("open media store", "err", err)
		os.Exit(1)
	}

	aead, err := loadOrCreateAEAD(*keyFile)
	if err != nil {
		slog.Error("load aead key", "err", err)
		os.Exit(1)
	}

	presenceTable := presence.New()
	convIndex := convindex.New()
	uploadsTable := uploads.New()
	captchaMachine := captcha.NewMachine(captcha.BasicFontRenderer{})

	heads, err := st.LoadAllHeads()
	if err != nil {
		slog.Error("hydrate conversation index", "err", err)
		os.Exit(1)
	}
	convIndex.Hydrate(heads)
	slog.Info("hydrated conversation index", "pairs", len(heads))

	deps := &Deps{
		Store:             st,
		Media:             mediaStore,
		Presence:          presenceTable,
		ConvIndex:         convIndex,
		Uploads:           uploadsTable,
		Captcha:           captchaMachine,
		Thumbnailer:       media.ImagingThumbnailer{},
		VideoProbe:        media.FFmpegProbe{Timeout: *ffmpegTimeout},
		AEAD:              aead,
		UploadIdleTimeout: *uploadIdleTimeout,
		RateLimit:         rate.Limit(*rateLimit),
		RateBurst:         *rateBurst,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		slog.Info("shutting down...")
		cancel()
	}()

	go RunMetrics(ctx, deps, 5*time.Second)

	go func() {
		ticker := time.NewTicker(UploadSweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, s := range uploadsTable.SweepIdle(deps.UploadIdleTimeout) {
					slog.Warn("sweeping abandoned upload", "request_id", s.RequestID, "path", s.FilePath)
					media.RemoveAbandoned(s.FilePath)
				}
			}
		}
	}()

	go func() {
		ticker := time.NewTicker(CaptchaSweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				captchaMachine.Sweep()
			}
		}
	}()

	go func() {
		ticker := time.NewTicker(StoreOptimizeInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := st.Optimize(); err != nil {
					slog.Error("store optimize", "err", err)
				}
			}
		}
	}()

	if *opsAddr != "" {
		opsServer := ops.New(st, presenceTable, uploadsTable)
		go func() {
			if err := opsServer.Run(ctx, *opsAddr); err != nil {
				slog.Error("ops server", "err", err)
			}
		}()
		slog.Info("ops server listening", "addr", *opsAddr)
	}

	srv := NewServer(*addr, deps)
	if err := srv.Run(ctx); err != nil {
		slog.Error("server", "err", err)
		os.Exit(1)
	}
}

// loadOrCreateAEAD reads a 32-byte pre-shared key from keyPath, generating
// and persisting a new random one on first run if the file does not yet
// exist. An empty keyPath generates an ephemeral key for the process
// lifetime only (development/testing).
func loadOrCreateAEAD(keyPath string) (cipher.AEAD, error) {
	if keyPath == "" {
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, err
		}
		return frame.NewAEAD(key)
	}

	data, err := os.ReadFile(keyPath)
	if err == nil {
		key, decodeErr := hex.DecodeString(string(data))
		if decodeErr != nil {
			return nil, decodeErr
		}
		return frame.NewAEAD(key)
	}
	if !os.IsNotExist(err) {
		return nil, err
	}

	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	if err := os.WriteFile(keyPath, []byte(hex.EncodeToString(key)), 0o600); err != nil {
		return nil, err
	}
	slog.Info("generated new aead key", "path", keyPath)
	return frame.NewAEAD(key)
}
