package main

import "time"

// Operational limits — named constants for values this domain's handlers
// and background sweeps reference.
const (
	// MaxAvatarBytes is the upload cap spec.md §4.10 register_3 states for
	// avatar data ("≤ 2 MiB; larger → reject"), reused by upload_avatar.
	MaxAvatarBytes int64 = 2 << 20

	// UploadIdleTimeout bounds how long an in-flight chunked upload may sit
	// without a new chunk before its accumulator file is swept as abandoned
	// (SPEC_FULL.md §9 resolution of spec.md §9 open question 3).
	UploadIdleTimeout = 10 * time.Minute

	// UploadSweepInterval is the cadence of the background goroutine that
	// calls uploads.Table.SweepIdle.
	UploadSweepInterval = 1 * time.Minute

	// CaptchaSweepInterval is the cadence of the background goroutine that
	// calls captcha.Machine.Sweep, supplementing the inline per-request
	// sweep (SPEC_FULL.md §9 resolution of spec.md §9 open question 5).
	CaptchaSweepInterval = 1 * time.Minute

	// StoreOptimizeInterval is the cadence of the background goroutine that
	// runs store.Store.Optimize, grounded on the teacher's main.go sqlite
	// optimize ticker.
	StoreOptimizeInterval = 1 * time.Hour

	// DefaultPageSize is used by get_chat_history_paginated when the
	// request omits page_size or supplies a non-positive value.
	DefaultPageSize = 50
)
