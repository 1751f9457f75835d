package auth

import (
	"encoding/json"
	"net/http"
	"time"

	xerrors "AgentVault/internal/errors"
	"AgentVault/pkg/logger"
)

// Middleware 认证每个请求并把调用方写入上下文，同时记录审计日志。
func (v *Verifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, err := v.Authenticate(r)
		if err != nil {
			status := http.StatusUnauthorized
			if xerrors.CodeOf(err) == xerrors.CodeInvalidArgument {
				status = http.StatusBadRequest
			}
			writeError(w, status, err)
			logger.Audit().Warn("access_denied",
				"path", r.URL.Path,
				"method", r.Method,
				"status", status,
				"error", err.Error(),
			)
			return
		}

		start := time.Now()
		aw := &auditWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(aw, r.WithContext(WithCaller(r.Context(), caller)))
		logger.Audit().Info("api_request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", aw.status,
			"duration_ms", time.Since(start).Milliseconds(),
			"caller", caller.Hex(),
		)
	})
}

func writeError(w http.ResponseWriter, status int, err error) {
	body := map[string]string{"code": string(xerrors.CodeOf(err)), "message": err.Error(), "category": string(xerrors.CategoryOf(err))}
	if coded, ok := xerrors.From(err); ok {
		body["message"] = coded.Message()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// auditWriter 捕获响应状态码。
type auditWriter struct {
	http.ResponseWriter
	status int
}

func (w *auditWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
