// Package tls serves the certificate for the gRPC listener and reloads it when the
// files on disk change.
package tls
