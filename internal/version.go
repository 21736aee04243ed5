// Package internal holds build metadata.
package internal

// Version is the build version, overridden at build time with
// -ldflags "-X github.com/veritasvote/veritas-node/internal.Version=...".
var Version = "dev"
