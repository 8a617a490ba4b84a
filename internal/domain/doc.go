// Package domain defines the core domain types and interfaces.
//
// This package contains concept-oriented files (content.go, channel.go, errors.go)
// with shared types and cross-cutting interfaces. No I/O here - just contracts and values.
// Interfaces live on this side so adapters and the broadcast core never import each other.
package domain
