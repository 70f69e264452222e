package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/joshu-sajeev/transcribeq/common"
)

var validate = validator.New()

// Validate runs struct validation on an already decoded value. On failure
// it attaches an APIError to the context and returns false.
func Validate[T any](c *gin.Context, v *T) bool {
	if err := validate.Struct(v); err != nil {
		c.Error(common.APIError{
			Status:  http.StatusBadRequest,
			Message: "validation failed",
			Fields:  FormatValidationErrors(err),
		})
		return false
	}
	return true
}

func FormatValidationErrors(err error) map[string]any {
	fields := map[string]any{}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		fields["_"] = err.Error()
		return fields
	}

	for _, e := range verrs {
		fields[e.Field()] = "failed " + e.Tag()
	}
	return fields
}
