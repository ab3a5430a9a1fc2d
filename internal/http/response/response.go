package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/marketplace-backend/internal/domain"
	"github.com/yungbote/marketplace-backend/internal/platform/apierr"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// RespondError classifies err through apierr and writes the error envelope.
func RespondError(c *gin.Context, err error) {
	ae := apierr.FromError(err)
	if ae == nil {
		ae = apierr.New(http.StatusInternalServerError, "internal", nil)
	}
	if err != nil && ae.Status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	msg := domain.MessageOf(ae.Err)
	if msg == "" {
		msg = ae.Error()
	}
	c.AbortWithStatusJSON(ae.Status, ErrorEnvelope{Error: APIError{Message: msg, Code: ae.Code}})
}

func RespondErrorStatus(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.AbortWithStatusJSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

func RespondCreated(c *gin.Context, payload any) {
	c.JSON(http.StatusCreated, payload)
}
