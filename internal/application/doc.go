// Package application provides application initialization and dependency wiring.
// It builds the probe handler, router and HTTP server from a config.Config and
// returns an explicit App instance that collaborators attach routes to, keeping
// the main package focused on CLI parsing and process lifecycle.
package application
