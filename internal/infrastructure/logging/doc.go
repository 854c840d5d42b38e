// Package logging provides structured logging for the registry service.
//
// It wraps log/slog so every component logs with the same handler and
// default fields.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("registry created", "registry", name, "owner", caller)
//	st.SetLogger(logger.Component("store"))
//
// # Security
//
// Never log JWT secrets, bearer tokens, or broker passwords.
package logging
