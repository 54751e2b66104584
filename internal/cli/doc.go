// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the interactive chat REPL.
//
// The REPL reads input with line editing and history, forwards messages to
// the stream controller, prints the answer as it arrives, and exposes the
// session commands (/sessions, /new, /select, /delete).
package cli
