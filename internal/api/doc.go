// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package api implements the HTTP client for the Notewell backend.
//
// It covers the two surfaces the chat client needs: session CRUD over
// plain JSON endpoints, and the streaming chat endpoint that returns a
// newline-delimited data stream. CRUD calls retry transient failures with
// exponential backoff; streaming requests never retry and are cancelled
// through their context.
package api
