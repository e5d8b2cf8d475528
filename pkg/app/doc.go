// Package app assembles the storage, cache, archive and statistics services
// from a loaded configuration. The server, cache warmer and import tool all
// start from New.
package app
