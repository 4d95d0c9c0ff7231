package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"barbearia/backend/internal/domain"
	"barbearia/backend/internal/service/bookings"
)

var registerOnce sync.Once

// registerValidators teaches gin's validator the isodate tag and makes it
// report wire names (form or json tag) instead of Go field names.
func registerValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			for _, key := range []string{"form", "json"} {
				name := strings.SplitN(f.Tag.Get(key), ",", 2)[0]
				if name != "" && name != "-" {
					return name
				}
			}
			return f.Name
		})
		_ = v.RegisterValidation("isodate", func(fl validator.FieldLevel) bool {
			_, ok := domain.ParseDate(fl.Field().String())
			return ok
		})
	})
}

// writeBindError reports the first failing field of a bound request using
// the same error codes as the admission gates.
func writeBindError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		code := string(bookings.ReasonInvalid)
		msg := fmt.Sprintf("%s is invalid", fe.Field())
		switch fe.Tag() {
		case "required":
			code = string(bookings.ReasonMissingField)
			msg = "missing required field: " + fe.Field()
		case "isodate":
			code = string(bookings.ReasonInvalidDate)
			msg = fe.Field() + " must be YYYY-MM-DD"
		}
		abortWith(c, http.StatusBadRequest, errorBody{Code: code, Message: msg, Field: fe.Field()})
		return
	}

	var numErr *strconv.NumError
	if errors.As(err, &numErr) {
		abortWith(c, http.StatusBadRequest, errorBody{Code: string(bookings.ReasonInvalid), Message: "query parameter is not a number"})
		return
	}
	abortWith(c, http.StatusBadRequest, errorBody{Code: string(bookings.ReasonInvalid), Message: "malformed request: " + err.Error()})
}

// minutes decodes a JSON number or numeric string and drops any fractional
// part, so "30", 30 and 30.9 all read as 30.
type minutes int

func (m *minutes) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*m = 0
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*m = 0
			return nil
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) > math.MaxInt32 {
		return fmt.Errorf("dur: %q is not a number of minutes", s)
	}
	*m = minutes(int(f))
	return nil
}

func (m *minutes) intPtr() *int {
	if m == nil {
		return nil
	}
	v := int(*m)
	return &v
}

// clockLabel formats a minute of day as HH:MM, allowing 24:00 for an
// interval ending at midnight.
func clockLabel(minute int) string {
	return fmt.Sprintf("%02d:%02d", minute/60, minute%60)
}
