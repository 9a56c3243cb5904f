package middlewares

import (
	"log/slog"
	"net/http"
	"time"
)

// LoggerMiddleware logs every request before it is sent and its outcome once the rest of the chain returns.
func LoggerMiddleware(logger *slog.Logger) Middleware {
	return LevelLoggerMiddleware(logger, slog.LevelInfo)
}

// LevelLoggerMiddleware is LoggerMiddleware writing its request lines at level.
// Failures are always logged at slog.LevelError.
func LevelLoggerMiddleware(logger *slog.Logger, level slog.Level) Middleware {
	if logger == nil {
		logger = slog.Default()
	}

	return MiddlewareFunc(func(req *http.Request, t Transport, next Next) (*http.Response, error) {
		ctx := req.Context()
		logger.Log(ctx, level, "Executing request", "URL", req.URL, "Method", req.Method)
		start := time.Now()

		resp, err := next.Run(req, t)

		elapsed := time.Since(start)
		if err != nil {
			logger.Error("Error on request", "URL", req.URL, "Method", req.Method, "Elapsed", elapsed, "Error", err.Error())
			return resp, err
		}

		status := 0
		if resp != nil {
			status = resp.StatusCode
		}

		logger.Log(ctx, level, "Request completed", "URL", req.URL, "Method", req.Method, "Status", status, "Elapsed", elapsed)
		return resp, nil
	})
}
