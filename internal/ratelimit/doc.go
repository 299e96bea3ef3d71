// Package ratelimit enforces the per-identity cooldown between accepted pixel
// writes.
//
// Each identity is either idle or cooling down. Reserve checks and records in
// one atomic step per key, so two concurrent attempts from the same identity
// can never both be accepted. A rejected attempt leaves the recorded timestamp
// alone and reports how long the caller must wait.
//
// State is volatile. Losing it (restart, Redis flush) only resets cooldowns.
package ratelimit
