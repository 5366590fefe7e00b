// Package types defines shared error types used across the service.
package types
