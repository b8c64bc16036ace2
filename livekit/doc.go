// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

// Package livekit implements room.Transport on the LiveKit server SDK
// RoomService client. Every call is bounded by the configured timeout and
// Twirp "not_found" replies map to room.ErrTransportNotFound.
package livekit
