// Package logging wraps log/slog with the gateway's conventions.
//
// A Logger built by New emits structured records with service and
// version attached to every line; components derive child loggers with
// With("component", ...) so a grep for component=meter or
// component=wisun isolates one subsystem. Level, format and output are
// driven by the logging section of config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// One rule matters more than the rest: the Route-B password, auth
// secret and broker credentials never appear in a log record. When an
// identifier has to be logged, log a short prefix:
//
//	logger.Info("credentials set", "rbid_prefix", rbid[:8]+"...")
package logging
