package swagger

import (
	"encoding/json"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
	httpSwagger "github.com/swaggo/http-swagger"
	"github.com/tailingsiq/tailingsiq/internal/logging"
)

const SpecPath = "/api/openapi.json"

// SpecLoader returns the OpenAPI document to publish.
type SpecLoader func() (*openapi3.T, error)

// ServeSwaggerJSON serves the OpenAPI document as JSON.
func ServeSwaggerJSON(load SpecLoader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		spec, err := load()
		if err != nil {
			logging.Error("Failed to load OpenAPI spec", "error", err)
			http.Error(w, "Failed to load OpenAPI spec", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Access-Control-Allow-Origin", "*") // CORS off for docs
		if err := json.NewEncoder(w).Encode(spec); err != nil {
			logging.Error("Failed to encode OpenAPI spec", "error", err)
		}
	}
}

// UI serves Swagger UI pointed at SpecPath.
func UI() http.HandlerFunc {
	return httpSwagger.Handler(httpSwagger.URL(SpecPath))
}
