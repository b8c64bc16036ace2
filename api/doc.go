// Package api defines the JSON request and response bodies of the warm
// transfer HTTP API.
//
// # API Overview
//
// The service exposes:
//   - Rooms: create, list, inspect, delete and sweep idle rooms
//   - Participants: join tokens, removal, connection state, hold and move
//   - Calls: transcripts, summaries and handoff briefings
//   - Transfers: initiate, inspect, signal consultation complete, cancel
//   - Events: a per-room WebSocket stream of data messages and transfer updates
//   - Health monitoring and Prometheus metrics
//
// Every JSON response is wrapped in the envelope
//
//	{"success": true, "data": {...}, "timestamp": "...", "request_id": "..."}
//
// and failures carry {"code", "message", "retryable"} under "error".
//
// # Authentication
//
// When api keys are configured, requests must send the X-API-Key header:
//
//	X-API-Key: your-api-key
//
// # Base URL
//
// The default base URL for the API is:
//
//	http://localhost:8000
package api
