package echoapi

import (
	"bytes"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/brijeshkumar2024/smart-attendance/core"
	"github.com/brijeshkumar2024/smart-attendance/core/attendance"
	"github.com/brijeshkumar2024/smart-attendance/core/class"
	"github.com/brijeshkumar2024/smart-attendance/core/user"
)

type attendanceApi struct {
	svc      *attendance.Service
	usrSvc   *user.Service
	validate *validator.Validate
}

func registerAttendanceAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	svc *attendance.Service,
	usrSvc *user.Service,
	validate *validator.Validate,
) {
	api := attendanceApi{
		svc:      svc,
		usrSvc:   usrSvc,
		validate: validate,
	}

	ag := g.Group("/attendance", jwt)
	ag.POST("", api.mark, staffMiddleware())
	ag.POST("/bulk", api.bulkMark, teacherMiddleware())
	ag.GET("", api.query)
	ag.PATCH("/:id", api.updateStatus, staffMiddleware())
	ag.DELETE("/:id", api.destroy, staffMiddleware())

	ag.GET("/low-attendance", api.lowAttendance, staffMiddleware())
	ag.GET("/ranking", api.ranking, staffMiddleware())
	ag.GET("/monthly", api.monthly)
	ag.GET("/percentage/:studentId", api.percentage)
	ag.GET("/class-wise-percentage", api.classWise, studentMiddleware())
	ag.GET("/class-percentage/:studentId", api.classWiseFor, staffMiddleware())

	ag.GET("/export/csv", api.exportCSV, staffMiddleware())
	ag.GET("/export/pdf", api.exportPDF, staffMiddleware())
	ag.GET("/audit", api.audit, adminMiddleware())
}

// Handlers

func (api *attendanceApi) mark(ctx echo.Context) error {
	var data attendance.Mark
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Mark")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	att, err := api.svc.Mark(ctx.Request().Context(), ctxUsr, data)
	if err != nil {
		return errors.Wrap(err, "marking attendance")
	}
	return ctx.JSON(http.StatusCreated, att)
}

func (api *attendanceApi) bulkMark(ctx echo.Context) error {
	var data attendance.BulkMark
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to BulkMark")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	res, err := api.svc.BulkMark(ctx.Request().Context(), ctxUsr, data)
	if err != nil {
		return errors.Wrap(err, "bulk marking attendance")
	}
	return ctx.JSON(http.StatusCreated, res)
}

func (api *attendanceApi) query(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	filter, err := bindAttendanceFilter(ctx)
	if err != nil {
		return err
	}

	details, err := api.svc.Query(ctx.Request().Context(), ctxUsr, filter)
	if err != nil {
		return errors.Wrap(err, "querying attendance")
	}
	if details == nil {
		details = []attendance.Detail{}
	}
	return ctx.JSON(http.StatusOK, details)
}

func (api *attendanceApi) updateStatus(ctx echo.Context) error {
	var data attendance.UpdateStatus
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateStatus")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	att, err := api.svc.UpdateStatus(ctx.Request().Context(), ctxUsr, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating attendance status")
	}
	return ctx.JSON(http.StatusOK, att)
}

func (api *attendanceApi) destroy(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	if err := api.svc.Delete(ctx.Request().Context(), ctxUsr, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting attendance")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *attendanceApi) lowAttendance(ctx echo.Context) error {
	limit := attendance.LowAttendanceThreshold
	if raw := ctx.QueryParam("limit"); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return core.NewValidationError(nil, core.FieldError{Field: "limit", Error: "limit must be a number"})
		}
		limit = parsed
	}

	rollups, err := api.svc.LowAttendance(ctx.Request().Context(), limit)
	if err != nil {
		return errors.Wrap(err, "querying low attendance")
	}
	if rollups == nil {
		rollups = []attendance.Rollup{}
	}
	return ctx.JSON(http.StatusOK, rollups)
}

func (api *attendanceApi) ranking(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	semester := 0
	if raw := ctx.QueryParam("semester"); raw != "" {
		if semester, err = strconv.Atoi(raw); err != nil {
			return core.NewValidationError(nil, core.FieldError{Field: "semester", Error: "semester must be a number"})
		}
	}
	scope := class.ClassFilter{
		ProgramID:  core.CleanString(ctx.QueryParam("program_id")),
		SessionID:  core.CleanString(ctx.QueryParam("session_id")),
		BranchID:   core.CleanString(ctx.QueryParam("branch_id")),
		Semester:   semester,
		GroupLabel: core.CleanString(ctx.QueryParam("group_label")),
		Subject:    core.CleanString(ctx.QueryParam("subject")),
	}

	ranking, err := api.svc.Ranking(ctx.Request().Context(), ctxUsr, scope)
	if err != nil {
		return errors.Wrap(err, "querying ranking")
	}
	if ranking == nil {
		ranking = []attendance.RankedRollup{}
	}
	return ctx.JSON(http.StatusOK, ranking)
}

func (api *attendanceApi) monthly(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	month, err := strconv.Atoi(ctx.QueryParam("month"))
	if err != nil {
		return core.NewValidationError(nil, core.FieldError{Field: "month", Error: "month must be a number"})
	}
	year, err := strconv.Atoi(ctx.QueryParam("year"))
	if err != nil {
		return core.NewValidationError(nil, core.FieldError{Field: "year", Error: "year must be a number"})
	}

	report, err := api.svc.Monthly(ctx.Request().Context(), ctxUsr, month, year,
		ctx.QueryParam("class_id"), ctx.QueryParam("student_id"))
	if err != nil {
		return errors.Wrap(err, "querying monthly attendance")
	}
	return ctx.JSON(http.StatusOK, report)
}

func (api *attendanceApi) percentage(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	studentID := ctx.Param("studentId")
	if ctxUsr.IsStudent() && studentID != ctxUsr.ID {
		return errHttpForbidden
	}

	stats, err := api.svc.StudentStats(ctx.Request().Context(), studentID)
	if err != nil {
		return errors.Wrap(err, "querying student stats")
	}
	return ctx.JSON(http.StatusOK, stats)
}

func (api *attendanceApi) classWise(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	return api.respondClassWise(ctx, ctxUsr.ID)
}

func (api *attendanceApi) classWiseFor(ctx echo.Context) error {
	return api.respondClassWise(ctx, ctx.Param("studentId"))
}

func (api *attendanceApi) respondClassWise(ctx echo.Context, studentID string) error {
	rollups, err := api.svc.ClassWise(ctx.Request().Context(), studentID)
	if err != nil {
		return errors.Wrap(err, "querying class-wise attendance")
	}
	if rollups == nil {
		rollups = []attendance.ClassRollup{}
	}
	return ctx.JSON(http.StatusOK, rollups)
}

func (api *attendanceApi) exportCSV(ctx echo.Context) error {
	details, err := api.queryForExport(ctx)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := attendance.ExportCSV(&buf, details); err != nil {
		return errors.Wrap(err, "exporting attendance CSV")
	}
	ctx.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="attendance_report.csv"`)
	return ctx.Blob(http.StatusOK, "text/csv", buf.Bytes())
}

func (api *attendanceApi) exportPDF(ctx echo.Context) error {
	details, err := api.queryForExport(ctx)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := attendance.ExportPDF(&buf, details); err != nil {
		return errors.Wrap(err, "exporting attendance PDF")
	}
	ctx.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="attendance_report.pdf"`)
	return ctx.Blob(http.StatusOK, "application/pdf", buf.Bytes())
}

func (api *attendanceApi) queryForExport(ctx echo.Context) ([]attendance.Detail, error) {
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return nil, errors.Wrap(err, "getting context user")
	}
	filter, err := bindAttendanceFilter(ctx)
	if err != nil {
		return nil, err
	}
	details, err := api.svc.Query(ctx.Request().Context(), ctxUsr, filter)
	if err != nil {
		return nil, errors.Wrap(err, "querying attendance")
	}
	return details, nil
}

func (api *attendanceApi) audit(ctx echo.Context) error {
	limit := 0
	if raw := ctx.QueryParam("limit"); raw != "" {
		var err error
		if limit, err = strconv.Atoi(raw); err != nil {
			return core.NewValidationError(nil, core.FieldError{Field: "limit", Error: "limit must be a number"})
		}
	}

	entries, err := api.svc.QueryAudit(ctx.Request().Context(), limit)
	if err != nil {
		return errors.Wrap(err, "querying audit log")
	}
	if entries == nil {
		entries = []attendance.AuditEntry{}
	}
	return ctx.JSON(http.StatusOK, entries)
}

func bindAttendanceFilter(ctx echo.Context) (attendance.QueryFilter, error) {
	filter := attendance.QueryFilter{
		StudentID: core.CleanString(ctx.QueryParam("student_id")),
		ClassID:   core.CleanString(ctx.QueryParam("class_id")),
		Status:    core.CleanString(ctx.QueryParam("status")),
	}
	if raw := ctx.QueryParam("start"); raw != "" {
		start, err := core.ParseDate(raw)
		if err != nil {
			return filter, core.NewValidationError(nil, core.FieldError{Field: "start", Error: "start must be YYYY-MM-DD"})
		}
		filter.Start = start
	}
	if raw := ctx.QueryParam("end"); raw != "" {
		end, err := core.ParseDate(raw)
		if err != nil {
			return filter, core.NewValidationError(nil, core.FieldError{Field: "end", Error: "end must be YYYY-MM-DD"})
		}
		filter.End = core.EndOfDay(end)
	}
	return filter, nil
}
