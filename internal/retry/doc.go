// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package retry runs an operation under an exponential-backoff retry loop
// whose waits can be cancelled and observed.
//
// # Key Types
//
//   - Policy: delay schedule and poll period
//   - State: observable progress of a pending retry (attempt, countdown)
//   - Kind: error classification used to decide retryability
//   - ExhaustedError: returned when every attempt failed with a retryable error
//
// # Backoff
//
// Attempt 0 runs immediately. Attempt n (n >= 1) waits
// min(BaseDelay * 2^(n-1), MaxDelay), which for the default policy gives
// 1s, 2s, 4s, 8s, 10s, 10s, ...
//
// # Usage
//
//	err := retry.DefaultPolicy().Do(ctx, 3, func(ctx context.Context, attempt int) error {
//	    return client.Stream(ctx, ...)
//	}, func(s retry.State) {
//	    ui.ShowRetry(s)
//	})
package retry
