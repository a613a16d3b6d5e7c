package echoapi

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/brijeshkumar2024/smart-attendance/core"
	"github.com/brijeshkumar2024/smart-attendance/core/class"
	"github.com/brijeshkumar2024/smart-attendance/core/user"
)

type classApi struct {
	svc      *class.Service
	usrSvc   *user.Service
	validate *validator.Validate
}

func registerClassAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	svc *class.Service,
	usrSvc *user.Service,
	validate *validator.Validate,
) {
	api := classApi{
		svc:      svc,
		usrSvc:   usrSvc,
		validate: validate,
	}

	cg := g.Group("/classes", jwt)
	cg.POST("", api.create, teacherMiddleware())
	cg.GET("", api.query, adminMiddleware())
	cg.GET("/my-classes", api.myClasses, teacherMiddleware())
	cg.POST("/allocate", api.allocate, adminMiddleware())
	cg.PATCH("/:id/teacher", api.assignTeacher, adminMiddleware())
}

// Handlers

func (api *classApi) create(ctx echo.Context) error {
	var data class.NewClass
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewClass")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	cls, err := api.svc.Create(ctx.Request().Context(), data, ctxUsr.ID)
	if err != nil {
		return errors.Wrap(err, "creating class")
	}
	return ctx.JSON(http.StatusCreated, cls)
}

func (api *classApi) query(ctx echo.Context) error {
	classes, err := api.svc.QueryAll(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying classes")
	}
	if classes == nil {
		classes = []class.Class{}
	}
	return ctx.JSON(http.StatusOK, classes)
}

func (api *classApi) myClasses(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	date := time.Now()
	if raw := ctx.QueryParam("date"); raw != "" {
		if date, err = core.ParseDate(raw); err != nil {
			return core.NewValidationError(nil, core.FieldError{Field: "date", Error: "date must be YYYY-MM-DD"})
		}
	}

	classes, err := api.svc.MyClasses(ctx.Request().Context(), ctxUsr.ID, date)
	if err != nil {
		return errors.Wrap(err, "querying teacher classes")
	}
	return ctx.JSON(http.StatusOK, classes)
}

func (api *classApi) allocate(ctx echo.Context) error {
	var data class.AllocateClass
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AllocateClass")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	res, err := api.svc.Allocate(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "allocating class")
	}

	code := http.StatusOK
	if res.Created {
		code = http.StatusCreated
	}
	return ctx.JSON(code, AllocationResponse{
		Class:      res.Class,
		Created:    res.Created,
		Reassigned: res.Reassigned,
	})
}

func (api *classApi) assignTeacher(ctx echo.Context) error {
	var data class.AssignTeacher
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AssignTeacher")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	res, err := api.svc.AssignTeacher(ctx.Request().Context(), ctx.Param("id"), ctxUsr.ID, data)
	if err != nil {
		return errors.Wrap(err, "assigning teacher")
	}
	return ctx.JSON(http.StatusOK, AssignmentResponse{
		Class:    res.Class,
		Override: res.Override,
		Changed:  res.Changed,
	})
}

type (
	AllocationResponse struct {
		Class      class.Class `json:"class"`
		Created    bool        `json:"created"`
		Reassigned bool        `json:"reassigned"`
	}

	AssignmentResponse struct {
		Class    class.Class            `json:"class"`
		Override *class.TeacherOverride `json:"override,omitempty"`
		Changed  bool                   `json:"changed"`
	}
)
