// Package reload implements development auto-reload: a Watcher turns file
// system events into debounced change notifications and a Supervisor rebuilds
// the service binary and restarts it on each notification.
package reload
