package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/nimasrn/support-inbox/internal/services"
	xhttp "github.com/nimasrn/support-inbox/pkg/http"
	"github.com/nimasrn/support-inbox/pkg/logger"
)

var validate = newValidator()

var errInvalidID = errors.New("invalid id")

type okResponse struct {
	OK bool `json:"ok"`
}

// newValidator reports fields by their json names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// readJSON decodes the body into dst and runs its validate tags.
func readJSON(ctx *xhttp.RequestCtx, dst any) error {
	body := ctx.PostBody()
	if len(body) == 0 {
		return errors.New("empty body")
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return err
	}
	return validationMessage(validate.Struct(dst))
}

func validationMessage(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Field()
		switch fe.Tag() {
		case "required", "required_without":
			parts = append(parts, field+" is required")
		case "max":
			parts = append(parts, field+" is too long")
		default:
			parts = append(parts, field+" is invalid")
		}
	}
	return errors.New(strings.Join(parts, ", "))
}

func writeJSON(ctx *xhttp.RequestCtx, status int, v any) {
	b, _ := json.Marshal(v)
	ctx.Response.Header.Set("Content-Type", "application/json; charset=utf-8")
	ctx.Response.SetStatusCode(status)
	ctx.Response.SetBodyRaw(b)
}

func writeError(ctx *xhttp.RequestCtx, status int, msg string) {
	writeJSON(ctx, status, map[string]string{"error": msg})
}

// writeServiceError maps a service error onto a status code. Only validation
// messages reach the client.
func writeServiceError(ctx *xhttp.RequestCtx, err error) {
	switch {
	case errors.Is(err, services.ErrValidation):
		writeError(ctx, xhttp.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrNotFound):
		writeError(ctx, xhttp.StatusNotFound, "not found")
	case errors.Is(err, services.ErrDependency), errors.Is(err, context.DeadlineExceeded):
		logger.Error("request failed on a dependency", "path", string(ctx.Path()), "request_id", xhttp.RequestID(ctx), "error", err)
		writeError(ctx, xhttp.StatusServiceUnavailable, "service unavailable")
	default:
		logger.Error("request failed", "path", string(ctx.Path()), "request_id", xhttp.RequestID(ctx), "error", err)
		writeError(ctx, xhttp.StatusInternalServerError, "internal error")
	}
}

func pathInt64(ctx *xhttp.RequestCtx, name string) (int64, error) {
	v, _ := ctx.UserValue(name).(string)
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id <= 0 {
		return 0, errInvalidID
	}
	return id, nil
}

func query(ctx *xhttp.RequestCtx, key string) string {
	return string(ctx.QueryArgs().Peek(key))
}

// parseTime accepts RFC3339 (with or without fractional seconds) or unix
// seconds.
func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	unix, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, errors.New("timestamp must be RFC3339 or unix seconds")
	}
	return time.Unix(unix, 0).UTC(), nil
}
