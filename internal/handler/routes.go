package handler

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutes wires all route handlers onto the Echo instance. A request
// validator is installed when none is set.
func RegisterRoutes(e *echo.Echo, auth *AuthHandler, files *FileHandler, health *HealthHandler) {
	if e.Validator == nil {
		e.Validator = NewRequestValidator()
	}

	e.GET("/healthz", health.Healthz)
	e.GET("/gateway/status", health.Status)

	a := e.Group("/api/auth")
	a.POST("/register", auth.Register)
	a.POST("/login", auth.Login)
	a.POST("/logout", auth.Logout)
	a.POST("/refresh", auth.Refresh)
	a.GET("/status", auth.Status)
	a.GET("/validate", auth.Validate)

	f := e.Group("/api/file")
	f.POST("/upload", files.Upload)
	f.POST("/upload-multiple", files.UploadMultiple)
	f.GET("/download", files.Download)
	f.GET("/list", files.List)
	f.GET("/search", files.Search)
	f.GET("/storage/:userId", files.StorageUsage)
	f.DELETE("/delete", files.Delete)
}
