// Package domain defines the core domain types and interfaces.
//
// Concept-oriented files (errors.go, streamer.go, profile.go, event.go, notification.go, app.go)
// hold shared types and cross-cutting interfaces. No implementation code - just contracts.
// Interfaces live here so adapters and app services never import each other.
package domain
