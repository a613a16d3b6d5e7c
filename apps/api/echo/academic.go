package echoapi

import (
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/brijeshkumar2024/smart-attendance/core"
	"github.com/brijeshkumar2024/smart-attendance/core/academic"
)

type academicApi struct {
	svc      *academic.Service
	validate *validator.Validate
}

func registerAcademicAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	svc *academic.Service,
	validate *validator.Validate,
) {
	api := academicApi{
		svc:      svc,
		validate: validate,
	}

	// academic structure management is admin-only; reads are open to all
	// authed users so registration forms can populate their dropdowns.
	ag := g.Group("/admin/academic", jwt)
	ag.GET("/programs", api.queryPrograms)
	ag.GET("/sessions", api.querySessions)
	ag.GET("/branches", api.queryBranches)
	ag.GET("/subjects", api.querySubjects)

	mg := ag.Group("", adminMiddleware())
	mg.POST("/programs", api.createProgram)
	mg.PATCH("/programs/:id/deactivate", api.deactivateProgram)
	mg.POST("/sessions", api.createSession)
	mg.PATCH("/sessions/:id/deactivate", api.deactivateSession)
	mg.POST("/branches", api.createBranch)
	mg.PATCH("/branches/:id/deactivate", api.deactivateBranch)
	mg.POST("/subjects", api.createSubject)
	mg.PATCH("/subjects/:id/deactivate", api.deactivateSubject)
	mg.GET("/summary", api.summary)

	tg := g.Group("/semesters", jwt)
	tg.GET("", api.queryTerms)
	tg.POST("", api.createTerm, adminMiddleware())
}

// Handlers

func (api *academicApi) createProgram(ctx echo.Context) error {
	var data academic.NewProgram
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewProgram")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	prog, err := api.svc.CreateProgram(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating program")
	}
	return ctx.JSON(http.StatusCreated, prog)
}

func (api *academicApi) queryPrograms(ctx echo.Context) error {
	progs, err := api.svc.Programs(ctx.Request().Context(), activeOnlyParam(ctx))
	if err != nil {
		return errors.Wrap(err, "querying programs")
	}
	if progs == nil {
		progs = []academic.Program{}
	}
	return ctx.JSON(http.StatusOK, progs)
}

func (api *academicApi) deactivateProgram(ctx echo.Context) error {
	prog, err := api.svc.DeactivateProgram(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "deactivating program")
	}
	return ctx.JSON(http.StatusOK, prog)
}

func (api *academicApi) createSession(ctx echo.Context) error {
	var data academic.NewSession
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSession")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	sess, err := api.svc.CreateSession(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating session")
	}
	return ctx.JSON(http.StatusCreated, sess)
}

func (api *academicApi) querySessions(ctx echo.Context) error {
	sessions, err := api.svc.Sessions(ctx.Request().Context(), core.CleanString(ctx.QueryParam("program_id")), activeOnlyParam(ctx))
	if err != nil {
		return errors.Wrap(err, "querying sessions")
	}
	if sessions == nil {
		sessions = []academic.Session{}
	}
	return ctx.JSON(http.StatusOK, sessions)
}

func (api *academicApi) deactivateSession(ctx echo.Context) error {
	sess, err := api.svc.DeactivateSession(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "deactivating session")
	}
	return ctx.JSON(http.StatusOK, sess)
}

func (api *academicApi) createBranch(ctx echo.Context) error {
	var data academic.NewBranch
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewBranch")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	branch, err := api.svc.CreateBranch(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating branch")
	}
	return ctx.JSON(http.StatusCreated, branch)
}

func (api *academicApi) queryBranches(ctx echo.Context) error {
	branches, err := api.svc.Branches(
		ctx.Request().Context(),
		core.CleanString(ctx.QueryParam("program_id")),
		core.CleanString(ctx.QueryParam("session_id")),
		activeOnlyParam(ctx),
	)
	if err != nil {
		return errors.Wrap(err, "querying branches")
	}
	if branches == nil {
		branches = []academic.Branch{}
	}
	return ctx.JSON(http.StatusOK, branches)
}

func (api *academicApi) deactivateBranch(ctx echo.Context) error {
	branch, err := api.svc.DeactivateBranch(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "deactivating branch")
	}
	return ctx.JSON(http.StatusOK, branch)
}

func (api *academicApi) createSubject(ctx echo.Context) error {
	var data academic.NewSubject
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSubject")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	subj, err := api.svc.CreateSubject(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating subject")
	}
	return ctx.JSON(http.StatusCreated, subj)
}

func (api *academicApi) querySubjects(ctx echo.Context) error {
	semester := 0
	if raw := ctx.QueryParam("semester"); raw != "" {
		var err error
		if semester, err = strconv.Atoi(raw); err != nil {
			return core.NewValidationError(nil, core.FieldError{Field: "semester", Error: "semester must be a number"})
		}
	}
	subjects, err := api.svc.Subjects(
		ctx.Request().Context(),
		core.CleanString(ctx.QueryParam("branch_id")),
		semester,
		activeOnlyParam(ctx),
	)
	if err != nil {
		return errors.Wrap(err, "querying subjects")
	}
	if subjects == nil {
		subjects = []academic.Subject{}
	}
	return ctx.JSON(http.StatusOK, subjects)
}

func (api *academicApi) deactivateSubject(ctx echo.Context) error {
	subj, err := api.svc.DeactivateSubject(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "deactivating subject")
	}
	return ctx.JSON(http.StatusOK, subj)
}

func (api *academicApi) summary(ctx echo.Context) error {
	summary, err := api.svc.Summary(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying academic summary")
	}
	return ctx.JSON(http.StatusOK, summary)
}

func (api *academicApi) createTerm(ctx echo.Context) error {
	var data academic.NewTerm
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewTerm")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	term, err := api.svc.CreateTerm(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating term")
	}
	return ctx.JSON(http.StatusCreated, term)
}

func (api *academicApi) queryTerms(ctx echo.Context) error {
	terms, err := api.svc.Terms(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying terms")
	}
	if terms == nil {
		terms = []academic.Term{}
	}
	return ctx.JSON(http.StatusOK, terms)
}

func activeOnlyParam(ctx echo.Context) bool {
	return ctx.QueryParam("active_only") != "false"
}
