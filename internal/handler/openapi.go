package handler

import (
	"net/http"

	"github.com/leadrelay/keygate/internal/openapi"
)

// OpenAPIHandler serves the OpenAPI 3.1 document of the external API. The
// document is generated per request so the server URL matches the host the
// client called.
type OpenAPIHandler struct {
	resources []openapi.Resource
	version   string
}

// NewOpenAPIHandler creates a handler documenting the given resources.
func NewOpenAPIHandler(resources []openapi.Resource, version string) *OpenAPIHandler {
	return &OpenAPIHandler{resources: resources, version: version}
}

// ServeSpec writes the document.
// GET /api/v1/external/openapi.json
func (h *OpenAPIHandler) ServeSpec(w http.ResponseWriter, r *http.Request) {
	doc := openapi.GenerateExternalSpec(baseURL(r), h.version, h.resources)
	writeJSON(w, http.StatusOK, doc)
}

func baseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}
