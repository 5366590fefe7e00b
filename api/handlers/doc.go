// Package handlers implements the HTTP API: product generation, packaging
// panel textures, file exports, demo seeding, and health probes. Handlers
// decode and validate requests, delegate to the services, and write the
// unified response envelope.
package handlers
