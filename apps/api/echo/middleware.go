package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/brijeshkumar2024/smart-attendance/core/user"
)

// roleMiddleware only lets authenticated users with one of the given roles through.
func roleMiddleware(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			for _, role := range roles {
				if claims.Role == role {
					return next(ctx)
				}
			}
			return errHttpForbidden
		}
	}
}

func adminMiddleware() echo.MiddlewareFunc {
	return roleMiddleware(user.RoleAdmin)
}

func teacherMiddleware() echo.MiddlewareFunc {
	return roleMiddleware(user.RoleTeacher)
}

func staffMiddleware() echo.MiddlewareFunc {
	return roleMiddleware(user.RoleAdmin, user.RoleTeacher)
}

func studentMiddleware() echo.MiddlewareFunc {
	return roleMiddleware(user.RoleStudent)
}
