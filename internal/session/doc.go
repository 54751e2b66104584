// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session manages the session list of the active project.
//
// The server is the source of truth; the store holds a lightweight local
// mirror, the current selection, and the one-shot title notification that
// arrives in-stream when the server names a new conversation.
package session
