// Package cache provides the two-tier result cache used by the statistics
// service: an expiring in-process LRU backed by Redis.
package cache
