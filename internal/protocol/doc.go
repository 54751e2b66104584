// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package protocol implements the client side of the Notewell chat stream
// protocol: newline-delimited "data:" frames carrying partial assistant
// text, stream sentinels, and inline [EVENT:...] control markers.
package protocol
