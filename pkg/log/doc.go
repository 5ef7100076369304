// Package log defines the structured logging contract shared by the
// pool, the ingest worker, the controller and every plugin.
//
// Components take a Logger at construction and never reach for a
// global. The frameprocessor binary logs through the bundled zerolog
// console adapter; tests run on the no-op logger; embedders may supply
// any Logger implementation, including a wrapper around an existing
// zerolog.Logger:
//
//	logger, err := log.NewConsoleAdapter("info")
//
//	logger := log.NewNoopLogger()
//
//	logger := log.NewZerologAdapterWithLogger(zl)
//
// The Field constructors cover the value kinds the pipeline actually
// logs: names, counters, byte sizes, frame numbers and errors. Anything
// else falls through the adapter as a generic value.
package log
