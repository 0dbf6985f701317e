package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// Response is the envelope of every API answer.
type Response struct {
	Meta Meta        `json:"meta"`
	Data interface{} `json:"data,omitempty"`
}

// Meta carries the status of the request.
type Meta struct {
	Code    int           `json:"code"`
	Message string        `json:"message"`
	Details []ErrorDetail `json:"details,omitempty"`
}

// ErrorDetail points at the field a failure relates to.
type ErrorDetail struct {
	Field string `json:"field"`
	Info  string `json:"info"`
}

// Success writes data with 200.
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Meta: Meta{Code: http.StatusOK, Message: "success"},
		Data: data,
	})
}

// Accepted writes data with 202; the work continues asynchronously.
func Accepted(c *gin.Context, data interface{}) {
	c.JSON(http.StatusAccepted, Response{
		Meta: Meta{Code: http.StatusAccepted, Message: "accepted"},
		Data: data,
	})
}

// Error writes an error answer without data.
func Error(c *gin.Context, status int, message string) {
	ErrorWithDetails(c, status, message, nil)
}

// ErrorWithDetails writes an error answer with field details.
func ErrorWithDetails(c *gin.Context, status int, message string, details []ErrorDetail) {
	c.AbortWithStatusJSON(status, Response{
		Meta: Meta{Code: status, Message: message, Details: details},
	})
}

// BadRequestWithValidation turns a binding error into a 400 with one detail per
// failed field.
func BadRequestWithValidation(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		Error(c, http.StatusBadRequest, "invalid request body")
		return
	}
	details := make([]ErrorDetail, 0, len(verrs))
	for _, fe := range verrs {
		details = append(details, ErrorDetail{
			Field: fieldPath(fe),
			Info:  validationMessage(fe),
		})
	}
	ErrorWithDetails(c, http.StatusBadRequest, "validation failed", details)
}

// fieldPath uses the json names registered on the validator, minus the root
// struct name.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	default:
		return fmt.Sprintf("failed on %s", fe.Tag())
	}
}
