package response

import (
	"github.com/gin-gonic/gin"
	apiError "github.com/techagentng/citizenchat/errors"
)

// Envelope is the shape of every API response.
type Envelope struct {
	Success bool          `json:"success"`
	Message string        `json:"message,omitempty"`
	Data    interface{}   `json:"data,omitempty"`
	Error   string        `json:"error,omitempty"`
	Code    apiError.Code `json:"code,omitempty"`
}

// JSON writes the envelope. When err is set the response carries its
// user-safe message and code, and the status comes from the error.
func JSON(c *gin.Context, message string, status int, data interface{}, err error) {
	if err != nil {
		e := apiError.From(err)
		if e.Status != 0 {
			status = e.Status
		}
		c.JSON(status, Envelope{
			Success: false,
			Message: message,
			Data:    data,
			Error:   e.Message,
			Code:    e.Code,
		})
		return
	}
	c.JSON(status, Envelope{
		Success: true,
		Message: message,
		Data:    data,
	})
}
