// Package logger provides a configured slog factory with JSON/text output,
// environment-driven settings, and context attribute injection.
//
// Production defaults are JSON output at INFO level. Components receive a
// *slog.Logger and tag records with the attribute helpers in this package:
//
//	log := logger.NewFromConfig(cfg)
//	log.Info("payment reconciled",
//	    logger.UserID(userID),
//	    logger.Platform("paystack"),
//	    logger.Amount(4900),
//	)
//
// Request-scoped values such as request IDs can be injected automatically
// via WithContextValue, which reads them from the log call's context.
package logger
