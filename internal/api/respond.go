package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"AgentVault/internal/auth"
	"AgentVault/internal/directory"
	xerrors "AgentVault/internal/errors"
	"AgentVault/internal/ledger"
	"AgentVault/pkg/logger"
)

const maxRequestBytes = 1 << 20

// statusFor 将错误分类映射为 HTTP 状态码。
func statusFor(err error) int {
	switch xerrors.CodeOf(err) {
	case ledger.CodePaused:
		return http.StatusLocked
	case auth.CodeUnauthenticated:
		return http.StatusUnauthorized
	case ledger.CodeDecisionNotFound, directory.CodeAgentNotFound, directory.CodeServiceNotFound, xerrors.CodeNotFound:
		return http.StatusNotFound
	}
	switch xerrors.CategoryOf(err) {
	case xerrors.CategoryValidation:
		return http.StatusBadRequest
	case xerrors.CategoryStateConflict:
		return http.StatusConflict
	case xerrors.CategoryAuthorization:
		return http.StatusForbidden
	case xerrors.CategoryPolicy:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	body := ErrorResponse{
		Code:     string(xerrors.CodeOf(err)),
		Message:  err.Error(),
		Category: string(xerrors.CategoryOf(err)),
	}
	if coded, ok := xerrors.From(err); ok {
		body.Message = coded.Message()
	}
	if status >= http.StatusInternalServerError {
		body.Message = "internal error"
		logger.Named("api").Error("请求处理失败",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Any("error", err),
		)
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// decode 解析请求体，未知字段与多余内容视为非法请求。
func decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "request body is malformed")
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return xerrors.New(xerrors.CodeInvalidArgument, "request body must contain a single JSON object")
	}
	return nil
}

func caller(r *http.Request) common.Address {
	addr, _ := auth.CallerFromContext(r.Context())
	return addr
}
