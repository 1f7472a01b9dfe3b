package api

import (
	_ "embed"
	"fmt"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	nethttpmiddleware "github.com/oapi-codegen/nethttp-middleware"
)

//go:embed openapi.yaml
var openapiSpec []byte

// GetSwagger parses and validates the embedded OpenAPI document.
func GetSwagger() (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	spec, err := loader.LoadFromData(openapiSpec)
	if err != nil {
		return nil, fmt.Errorf("error loading OpenAPI spec: %w", err)
	}
	if err := spec.Validate(loader.Context); err != nil {
		return nil, fmt.Errorf("invalid OpenAPI spec: %w", err)
	}
	return spec, nil
}

// NewValidator returns middleware that rejects requests not matching the
// OpenAPI document and runs authFunc for operations that declare
// BearerAuth.
func NewValidator(authFunc openapi3filter.AuthenticationFunc) (func(http.Handler) http.Handler, error) {
	spec, err := GetSwagger()
	if err != nil {
		return nil, err
	}
	// match on path only, whatever host we are served from
	spec.Servers = nil

	return nethttpmiddleware.OapiRequestValidatorWithOptions(spec, &nethttpmiddleware.Options{
		Options: openapi3filter.Options{
			AuthenticationFunc: authFunc,
		},
		ErrorHandler: validationErrorHandler,
	}), nil
}

func validationErrorHandler(w http.ResponseWriter, message string, statusCode int) {
	switch statusCode {
	case http.StatusUnauthorized:
		writeError(w, statusCode, Unauthorized("Could not validate credentials"))
	case http.StatusNotFound:
		writeError(w, statusCode, NewError(CodeResourceNotFound, "Endpoint not found"))
	default:
		writeError(w, statusCode, ValidationErr(message, nil))
	}
}
