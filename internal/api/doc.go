// Package api exposes the HTTP surface of the service: the /health liveness
// probe, the /ready readiness probe, and the middleware chain that wraps any
// routes attached by the hosting application.
package api
