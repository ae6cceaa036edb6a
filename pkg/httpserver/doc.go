// Package httpserver provides a graceful http.Server wrapper for the
// billing service binaries, with environment-driven configuration and
// probe handlers for orchestrated deployments.
package httpserver
