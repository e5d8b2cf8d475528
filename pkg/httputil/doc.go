// Package httputil provides the response, query and middleware helpers shared
// by the statistics API handlers.
//
// Error responses use a single shape:
//
//	{"message": "The port foo does not exist.", "status_code": 404}
//
// Middleware is composed with Chain:
//
//	handler := httputil.Chain(
//		httputil.RequestIDMiddleware(logger),
//		httputil.LoggingMiddleware,
//		httputil.RecoveryMiddleware,
//		httputil.TimeoutMiddleware(30*time.Second),
//		httputil.MaxBytesMiddleware(1<<20),
//	)(router)
package httputil
