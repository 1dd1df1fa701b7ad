// Package app provides the application service layer.
//
// AuthService turns a request credential into a linked streamer, Notifier is the
// queue handler that renders and delivers stream alerts, and SettingsService
// backs the streamer settings API. Depends on domain interfaces, not concrete implementations.
package app
