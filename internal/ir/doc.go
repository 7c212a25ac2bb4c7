// Package ir provides the canonical record types for setcode.
//
// This package contains type definitions and their encodings only. All other
// internal packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - NO float types anywhere - use int64 for numbers
//   - Caller always non-pointer on Call records
//   - All JSON tags use snake_case
//   - Logical clocks (seq) only, never wall-clock timestamps
//   - A CodeHash is exactly 32 bytes of SHA2-256; every textual form
//     (hex, CIDv1) normalizes to the same raw identifier
package ir
