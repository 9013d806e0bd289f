package adminapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response is the envelope every adminapi endpoint returns.
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func success(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, &Response{Success: true, Message: message, Data: data})
}

func errorResponse(c *gin.Context, code int, message string) {
	c.JSON(code, &Response{Success: false, Message: message})
}

func badRequest(c *gin.Context, message string) { errorResponse(c, http.StatusBadRequest, message) }

func internalError(c *gin.Context, message string) {
	errorResponse(c, http.StatusInternalServerError, message)
}
