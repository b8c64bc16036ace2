// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

// Package speech converts transfer briefings to audio. ElevenLabsSynthesizer
// talks to the ElevenLabs text-to-speech API; NopSynthesizer is used when no
// API key is configured and returns empty audio.
package speech
