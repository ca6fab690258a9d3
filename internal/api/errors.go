package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/settleline/internal/dispute"
	"github.com/settleline/internal/evidence"
)

// httpError maps the domain error taxonomy onto HTTP status codes.
func httpError(err error) error {
	if errors.Is(err, dispute.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "dispute not found")
	}
	if errors.Is(err, evidence.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "evidence not found")
	}

	kind, ok := dispute.KindOf(err)
	if !ok {
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	switch kind {
	case dispute.KindValidation:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case dispute.KindAuthorization:
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case dispute.KindPreconditionFailed:
		return echo.NewHTTPError(http.StatusPreconditionFailed, err.Error())
	case dispute.KindConflict:
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case dispute.KindDependency:
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
