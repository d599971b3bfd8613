package http

import (
	"encoding/json"
	"errors"
	"log"
	"reflect"
	"strconv"
	"strings"

	nethttp "net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/prepverse/prepverse-lms/internal/apperr"
)

// Handlers only — routes remain in main.go

var validate = validator.New()

func init() {
	// Report violations under the json field name the client actually sent.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
}

func writeJSON(w nethttp.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the domain error taxonomy onto status codes. Unrecognized
// errors become opaque 500s; the detail goes to the log, not the client.
func writeError(w nethttp.ResponseWriter, err error) {
	var fe apperr.FieldErrors
	switch {
	case errors.As(err, &fe):
		writeJSON(w, nethttp.StatusBadRequest, map[string]any{"errors": fe})
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, nethttp.StatusNotFound, map[string]any{"error": "not found"})
	case errors.Is(err, apperr.ErrForbidden):
		nethttp.Error(w, "forbidden", nethttp.StatusForbidden)
	case errors.Is(err, apperr.ErrNoEntitlement):
		writeJSON(w, nethttp.StatusForbidden, map[string]any{"error": apperr.ErrNoEntitlement.Error()})
	case errors.Is(err, apperr.ErrConflict):
		writeJSON(w, nethttp.StatusConflict, map[string]any{"error": "conflict, retry the request"})
	default:
		log.Printf("http: internal error: %v", err)
		nethttp.Error(w, "internal error", nethttp.StatusInternalServerError)
	}
}

func urlID(r *nethttp.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.ErrNotFound
	}
	return id, nil
}

func decodeJSON(r *nethttp.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperr.FieldErrors{"body": "invalid json"}
	}
	return nil
}

// validationErrors flattens validator output into the field-error shape the
// stores use, so the client sees one format everywhere.
func validationErrors(err error) apperr.FieldErrors {
	fe := apperr.FieldErrors{}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, v := range verrs {
			switch v.Tag() {
			case "required":
				fe[v.Field()] = "required"
			case "email":
				fe[v.Field()] = "must be a valid email address"
			case "min":
				fe[v.Field()] = "must be at least " + v.Param() + " characters"
			case "oneof":
				fe[v.Field()] = "must be one of: " + v.Param()
			default:
				fe[v.Field()] = "invalid"
			}
		}
		return fe
	}
	fe["body"] = "invalid request"
	return fe
}
