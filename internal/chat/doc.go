// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat drives a single streaming conversation turn.
//
// The controller owns the turn state machine: it resolves the target
// session, appends the optimistic message pair, decodes frames, routes
// inline events to their consumers, and settles the turn into completed,
// failed, or aborted. Cancellation is cooperative through the stream
// context and idempotent.
package chat
