package handler

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/locvowork/task_reconciler/internal/domain"
	"github.com/locvowork/task_reconciler/internal/logger"
	"github.com/locvowork/task_reconciler/internal/reconcile"
	"github.com/locvowork/task_reconciler/internal/report"
	"github.com/locvowork/task_reconciler/internal/service"
	"github.com/locvowork/task_reconciler/internal/service/serviceutils"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type SyncHandler struct {
	svc service.SyncService
}

func NewSyncHandler(svc service.SyncService) *SyncHandler {
	return &SyncHandler{svc: svc}
}

type syncAllRequest struct {
	UserIDs     []string `json:"user_ids"`
	Concurrency int      `json:"concurrency"`
}

func queryInt(c echo.Context, name string) (int, error) {
	v := c.QueryParam(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer: %w", name, domain.ErrValidation)
	}
	return n, nil
}

func queryBool(c echo.Context, name string, def bool) (bool, error) {
	v := c.QueryParam(name)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean: %w", name, domain.ErrValidation)
	}
	return b, nil
}

// SyncUserHandler runs one full reconciliation pass for a user.
func (h *SyncHandler) SyncUserHandler(c echo.Context) error {
	ctx := c.Request().Context()
	userID := c.Param("user_id")

	concurrency, err := queryInt(c, "concurrency")
	if err != nil {
		return serviceutils.ResponseError(c, http.StatusBadRequest, "Invalid query parameter", err)
	}
	maxRecords, err := queryInt(c, "max_records")
	if err != nil {
		return serviceutils.ResponseError(c, http.StatusBadRequest, "Invalid query parameter", err)
	}

	metrics, err := h.svc.FullSync(ctx, userID, reconcile.RunOptions{
		MaxRecords:     maxRecords,
		Concurrency:    concurrency,
		ReclassifyMode: c.QueryParam("mode"),
	})
	if err != nil {
		logger.WarnLog(ctx, "sync of %s failed: %v", userID, err)
		if metrics == nil {
			return serviceutils.ResponseError(c, serviceutils.StatusFor(err), "Sync failed", err)
		}
		return serviceutils.ResponseFailure(c, serviceutils.StatusFor(err), "Sync failed", err, metrics)
	}
	return serviceutils.ResponseSuccess(c, http.StatusOK, "Sync completed", metrics)
}

// SyncAllHandler runs a batch over the listed users, or every enabled user.
func (h *SyncHandler) SyncAllHandler(c echo.Context) error {
	ctx := c.Request().Context()
	var req syncAllRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return serviceutils.ResponseError(c, http.StatusBadRequest, "Invalid request body", err)
		}
	}

	results, err := h.svc.SyncAll(ctx, req.UserIDs, req.Concurrency)
	if err != nil {
		return serviceutils.ResponseError(c, serviceutils.StatusFor(err), "Batch sync failed", err)
	}
	return serviceutils.ResponseSuccess(c, http.StatusOK, "Batch sync completed", results)
}

// AuditHandler returns the consistency report as JSON or as an xlsx download.
func (h *SyncHandler) AuditHandler(c echo.Context) error {
	ctx := c.Request().Context()
	userID := c.Param("user_id")

	withRemote, err := queryBool(c, "remote", false)
	if err != nil {
		return serviceutils.ResponseError(c, http.StatusBadRequest, "Invalid query parameter", err)
	}
	format := c.QueryParam("format")
	if format != "" && format != "json" && format != "xlsx" {
		return serviceutils.ResponseError(c, http.StatusBadRequest, "Invalid query parameter",
			fmt.Errorf("format must be json or xlsx: %w", domain.ErrValidation))
	}

	audit, err := h.svc.Audit(ctx, userID, withRemote)
	if err != nil {
		return serviceutils.ResponseError(c, serviceutils.StatusFor(err), "Audit failed", err)
	}
	if format != "xlsx" {
		return serviceutils.ResponseSuccess(c, http.StatusOK, "Audit completed", audit)
	}

	var buf bytes.Buffer
	if err := report.WriteAuditWorkbook(&buf, audit); err != nil {
		return serviceutils.ResponseError(c, http.StatusInternalServerError, "Failed to generate Excel file", err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="audit_%s.xlsx"`, userID))
	return c.Blob(http.StatusOK, xlsxContentType, buf.Bytes())
}

// CleanupHandler runs dedupe and reclassify on their own. dry_run defaults to true.
func (h *SyncHandler) CleanupHandler(c echo.Context) error {
	ctx := c.Request().Context()
	userID := c.Param("user_id")

	dryRun, err := queryBool(c, "dry_run", true)
	if err != nil {
		return serviceutils.ResponseError(c, http.StatusBadRequest, "Invalid query parameter", err)
	}

	result, err := h.svc.Cleanup(ctx, userID, reconcile.CleanupOptions{DryRun: dryRun, Mode: c.QueryParam("mode")})
	if err != nil {
		return serviceutils.ResponseError(c, serviceutils.StatusFor(err), "Cleanup failed", err)
	}
	msg := "Cleanup applied"
	if dryRun {
		msg = "Cleanup planned (dry run)"
	}
	return serviceutils.ResponseSuccess(c, http.StatusOK, msg, result)
}

// ListRunsHandler pages through the run journal.
func (h *SyncHandler) ListRunsHandler(c echo.Context) error {
	ctx := c.Request().Context()
	pageSize, err := queryInt(c, "page_size")
	if err != nil {
		return serviceutils.ResponseError(c, http.StatusBadRequest, "Invalid query parameter", err)
	}

	page, err := h.svc.ListRuns(ctx, c.Param("user_id"), pageSize, c.QueryParam("cursor"))
	if errors.Is(err, service.ErrJournalDisabled) {
		return serviceutils.ResponseError(c, http.StatusNotImplemented, "Run journal unavailable", err)
	}
	if err != nil {
		return serviceutils.ResponseError(c, serviceutils.StatusFor(err), "Failed to list runs", err)
	}
	return serviceutils.ResponseSuccess(c, http.StatusOK, "Runs retrieved", page)
}

func (h *SyncHandler) HealthHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
