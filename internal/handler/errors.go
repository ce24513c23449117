package handler

import (
	"errors"
	"net/http"
	"strings"

	"lapor-service/internal/apperror"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// respondError writes err as {"error", "code", "details"} with the status its code maps to.
// Errors outside the taxonomy are hidden behind a 500.
func respondError(c *gin.Context, err error) {
	appErr, ok := apperror.As(err)
	if !ok {
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error", "code": "INTERNAL"})
		return
	}

	if appErr.Err != nil {
		c.Error(appErr.Err)
	}
	body := gin.H{"error": appErr.Message, "code": appErr.Code}
	if appErr.Details != nil {
		body["details"] = appErr.Details
	}
	c.JSON(statusFor(appErr), body)
}

func statusFor(appErr *apperror.AppError) int {
	if appErr.Status != 0 {
		return appErr.Status
	}
	switch appErr.Code {
	case apperror.CodeNotFound:
		return http.StatusNotFound
	case apperror.CodeForbidden:
		return http.StatusForbidden
	case apperror.CodeUnauthorized:
		return http.StatusUnauthorized
	case apperror.CodeConflict:
		return http.StatusConflict
	case apperror.CodeStorageFailure:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadRequest
	}
}

// bindError turns a gin binding failure into a VALIDATION_ERROR.
func bindError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperror.Validation([]apperror.FieldError{{Field: "body", Message: "malformed JSON body"}})
	}

	fields := make([]apperror.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.ToLower(fe.Field())
		message := "is invalid"
		if fe.Tag() == "required" {
			message = "is required"
		}
		fields = append(fields, apperror.FieldError{Field: field, Message: message})
	}
	return apperror.Validation(fields)
}
