package main

import (
	"crypto/cipher"
	"time"

	"golang.org/x/time/rate"

	"relaychat/server/internal/captcha"
	"relaychat/server/internal/convindex"
	"relaychat/server/internal/media"
	"relaychat/server/internal/presence"
	"relaychat/server/internal/uploads"
	"relaychat/server/store"
)

// Deps bundles every shared, process-wide component a connection's
// dispatcher and handlers read and write through (spec.md §9's "four
// explicitly-owned components, each a struct bundling its mutex and its
// map, passed by reference to handlers").
type Deps struct {
	Store       *store.Store
	Media       *media.Store
	Presence    *presence.Table
	ConvIndex   *convindex.Index
	Uploads     *uploads.Table
	Captcha     *captcha.Machine
	Thumbnailer media.Thumbnailer
	VideoProbe  media.VideoProbe
	AEAD        cipher.AEAD

	UploadIdleTimeout time.Duration

	// RateLimit and RateBurst bound how many requests a single connection
	// may submit per second, mirroring the teacher's per-client control
	// rate limit (client.go's -rate-limit flag), enforced per-connection
	// in dispatcher.go via golang.org/x/time/rate.
	RateLimit rate.Limit
	RateBurst int
}
