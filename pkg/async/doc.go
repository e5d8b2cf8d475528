// Package async runs background work with panic recovery and timeouts.
//
// SafeGo is used for fire-and-forget work that must not fail a request, such
// as archiving a raw submission after it has been committed. Batch fans a
// slice of items out over a bounded number of goroutines, which the importer
// uses to replay archived submissions.
//
// Failures are logged through logrus; SetLogger swaps the destination.
package async
