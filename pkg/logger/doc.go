// Package logger builds *slog.Logger instances from functional options and
// provides attribute helpers that keep key names consistent.
//
//	log := logger.New(
//	    logger.WithEnvironment(environment.Production, "iapctl"),
//	    logger.WithContextExtractors(httpserver.RequestIDExtractor()),
//	)
//	log.InfoContext(ctx, "entitlement changed",
//	    logger.ProductID("com.example.gold"),
//	    logger.Entitled(true),
//	)
//
// Records pass through a context handler, which runs the registered
// ContextExtractor callbacks on every Handle call. Error and Errors return an
// empty attribute for nil errors, so they can be passed unconditionally.
package logger
