// Package infra holds the adapters behind the dispatch core: the SQLite
// resource store, the MQTT field transport, metrics sinks, Sentry monitoring
// and the zerolog logger. Adapters implement interfaces declared under core/
// and are wired together in app.
package infra
