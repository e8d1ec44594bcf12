package handlers

import (
	"errors"
	"net/http"

	"github.com/geocoder89/sessionauth/internal/validation"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

type FieldError = validation.FieldError

func init() {
	// gin validates "binding" tags with its own engine; make it name fields the way clients send them
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		validation.UseJSONNames(v)
	}
}

// BindJSON decodes and validates the body into out, answering 400 with per-field details on failure.
func BindJSON(ctx *gin.Context, out interface{}) bool {
	err := ctx.ShouldBindJSON(out)
	if err == nil {
		return true
	}

	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		RespondError(ctx, http.StatusRequestEntityTooLarge, "body_too_large", "Request body is too large", nil)
		return false
	}

	if verr := validation.FromDecode(err); verr != nil {
		RespondValidation(ctx, verr)
		return false
	}

	// final fallback if the error could not be deciphered
	RespondBadRequest(ctx, "Invalid request body", gin.H{"reason": err.Error()})
	return false
}

// RespondValidation renders a validation.Error, whether it came from binding or from a service.
func RespondValidation(ctx *gin.Context, err *validation.Error) {
	details := gin.H{"fields": err.Fields}

	if err.Decode != "" {
		details["json"] = err.Decode
		if len(err.Fields) > 0 {
			details["field"] = err.Fields[0].Field
		}
	}

	RespondBadRequest(ctx, "Invalid request body", details)
}
