// Package httpserver runs an http.Handler with sane timeouts and shuts it down
// gracefully when the supplied context is cancelled.
//
//	srv := httpserver.NewFromConfig(cfg.HTTP, httpserver.WithLogger(log))
//	if err := srv.Run(ctx, router); err != nil {
//	    return err
//	}
//
// LivenessHandler and ReadinessHandler provide probe endpoints; readiness runs
// named checks such as store pings against the request context.
package httpserver
