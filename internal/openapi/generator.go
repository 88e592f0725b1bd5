package openapi

import (
	"fmt"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/leadrelay/keygate/internal/permission"
)

// ExtRequiredPermission is the operation extension naming the permission a
// key must hold to call it.
const ExtRequiredPermission = "x-required-permission"

// Resource describes one business API mounted behind the gateway.
type Resource struct {
	Name        string
	Description string
}

// GenerateExternalSpec builds the OpenAPI 3.1 document of the external API:
// the /me endpoint plus CRUD paths for every mounted resource, each tagged
// with the permission it requires.
func GenerateExternalSpec(baseURL, version string, resources []Resource) *openapi3.T {
	if version == "" {
		version = "1.0.0"
	}
	doc := &openapi3.T{
		OpenAPI: "3.1.0",
		Info: &openapi3.Info{
			Title:       "Keygate External API",
			Description: "CRM REST API behind API-key authentication. Every key has an hourly request quota reported in the X-RateLimit-* headers.",
			Version:     version,
		},
		Servers: openapi3.Servers{
			{URL: strings.TrimRight(baseURL, "/") + "/api/v1/external"},
		},
	}

	components := openapi3.NewComponents()
	components.Schemas = openapi3.Schemas{}
	components.SecuritySchemes = openapi3.SecuritySchemes{}
	doc.Components = &components

	doc.Components.SecuritySchemes["apiKey"] = &openapi3.SecuritySchemeRef{
		Value: &openapi3.SecurityScheme{Type: "apiKey", In: "header", Name: "X-API-Key"},
	}
	doc.Components.SecuritySchemes["bearerKey"] = &openapi3.SecuritySchemeRef{
		Value: &openapi3.SecurityScheme{
			Type:        "http",
			Scheme:      "bearer",
			Description: "The API key sent as a bearer token.",
		},
	}
	doc.Components.SecuritySchemes["queryKey"] = &openapi3.SecuritySchemeRef{
		Value: &openapi3.SecurityScheme{Type: "apiKey", In: "query", Name: "api_key"},
	}
	doc.Security = openapi3.SecurityRequirements{
		{"apiKey": {}},
		{"bearerKey": {}},
		{"queryKey": {}},
	}

	doc.Components.Schemas["ErrorResponse"] = errorResponseSchema()
	doc.Components.Schemas["KeyContext"] = keyContextSchema()

	doc.Paths = openapi3.NewPaths()
	doc.Paths.Set("/me", &openapi3.PathItem{Get: meOperation()})

	for _, res := range resources {
		addResourcePaths(doc, res)
	}
	return doc
}

// addResourcePaths documents the collection and item paths of a resource.
func addResourcePaths(doc *openapi3.T, res Resource) {
	name := res.Name
	collection := "/" + name
	item := collection + "/{id}"
	anyObject := &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"object"}}}

	doc.Paths.Set(collection, &openapi3.PathItem{
		Description: res.Description,
		Get:         resourceOperation(name, "list", permission.ActionRead, "200", anyObject, false),
		Post:        resourceOperation(name, "create", permission.ActionWrite, "201", anyObject, true),
	})
	doc.Paths.Set(item, &openapi3.PathItem{
		Parameters: openapi3.Parameters{
			&openapi3.ParameterRef{Value: openapi3.NewPathParameter("id").WithSchema(openapi3.NewStringSchema())},
		},
		Get:    resourceOperation(name, "get", permission.ActionRead, "200", anyObject, false),
		Put:    resourceOperation(name, "replace", permission.ActionWrite, "200", anyObject, true),
		Patch:  resourceOperation(name, "update", permission.ActionWrite, "200", anyObject, true),
		Delete: resourceOperation(name, "delete", permission.ActionDelete, "204", nil, false),
	})
}

func resourceOperation(resource, verb, action, status string, schema *openapi3.SchemaRef, withBody bool) *openapi3.Operation {
	required := permission.For(resource, action)
	op := &openapi3.Operation{
		Tags:        []string{resource},
		Summary:     fmt.Sprintf("%s %s", capitalize(verb), resource),
		Description: fmt.Sprintf("Requires the %s permission.", required),
		OperationID: fmt.Sprintf("%s_%s", verb, sanitizeName(resource)),
		Responses:   newResponses(status, fmt.Sprintf("%s %s succeeded", capitalize(verb), resource), schema),
	}
	op.Extensions = map[string]any{ExtRequiredPermission: required}
	if withBody {
		op.RequestBody = &openapi3.RequestBodyRef{
			Value: &openapi3.RequestBody{
				Required: true,
				Content:  openapi3.NewContentWithJSONSchemaRef(&openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"object"}}}),
			},
		}
	}
	return op
}

func meOperation() *openapi3.Operation {
	return &openapi3.Operation{
		Tags:        []string{"key"},
		Summary:     "Describe the calling key",
		Description: "Returns the key's account, permissions and remaining hourly quota. Requires no permission.",
		OperationID: "get_me",
		Responses: newResponses("200", "Key context", successSchema(&openapi3.SchemaRef{
			Value: &openapi3.Schema{
				Type: &openapi3.Types{"object"},
				AllOf: openapi3.SchemaRefs{
					openapi3.NewSchemaRef("#/components/schemas/KeyContext", nil),
				},
				Properties: openapi3.Schemas{
					"rate_limit_status": {Value: &openapi3.Schema{
						Type: &openapi3.Types{"object"},
						Properties: openapi3.Schemas{
							"limit":     {Value: openapi3.NewIntegerSchema()},
							"remaining": {Value: openapi3.NewIntegerSchema()},
							"window":    {Value: openapi3.NewStringSchema()},
						},
					}},
				},
			},
		})),
	}
}

// ─── Schema Builders ────────────────────────────────────────────────────────

func errorResponseSchema() *openapi3.SchemaRef {
	return &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type:     &openapi3.Types{"object"},
			Required: []string{"success", "error"},
			Properties: openapi3.Schemas{
				"success": {Value: openapi3.NewBoolSchema()},
				"error": {Value: &openapi3.Schema{
					Type:     &openapi3.Types{"object"},
					Required: []string{"code", "message"},
					Properties: openapi3.Schemas{
						"code":                {Value: openapi3.NewStringSchema()},
						"message":             {Value: openapi3.NewStringSchema()},
						"retry_after":         {Value: openapi3.NewIntegerSchema().WithMin(1)},
						"required_permission": {Value: openapi3.NewStringSchema()},
						"current_permissions": {Value: openapi3.NewArraySchema().WithItems(openapi3.NewStringSchema())},
					},
				}},
			},
		},
	}
}

func keyContextSchema() *openapi3.SchemaRef {
	return &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"key_id":       {Value: openapi3.NewInt64Schema()},
				"key_name":     {Value: openapi3.NewStringSchema()},
				"account_id":   {Value: openapi3.NewInt64Schema()},
				"account_name": {Value: openapi3.NewStringSchema()},
				"permissions":  {Value: openapi3.NewArraySchema().WithItems(openapi3.NewStringSchema())},
				"rate_limit":   {Value: openapi3.NewIntegerSchema()},
			},
		},
	}
}

func successSchema(data *openapi3.SchemaRef) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"success": {Value: openapi3.NewBoolSchema()},
				"data":    data,
			},
		},
	}
}

// ─── Response Helpers ───────────────────────────────────────────────────────

// rateLimitHeaders are sent on every response that passed key validation.
func rateLimitHeaders() openapi3.Headers {
	header := func(desc string) *openapi3.HeaderRef {
		return &openapi3.HeaderRef{Value: &openapi3.Header{Parameter: openapi3.Parameter{
			Description: desc,
			Schema:      &openapi3.SchemaRef{Value: openapi3.NewIntegerSchema()},
		}}}
	}
	return openapi3.Headers{
		"X-RateLimit-Limit":     header("Requests allowed per hour."),
		"X-RateLimit-Remaining": header("Requests left in the current hour."),
		"X-RateLimit-Reset":     header("Unix time at which the current window ends."),
	}
}

// newResponses builds a Responses map with a success response and the
// gateway's error responses. A nil schema describes an empty body.
func newResponses(statusCode, description string, schema *openapi3.SchemaRef) *openapi3.Responses {
	responses := openapi3.NewResponses()

	success := &openapi3.Response{Description: &description, Headers: rateLimitHeaders()}
	if schema != nil {
		success.Content = openapi3.NewContentWithJSONSchemaRef(schema)
	}
	responses.Set(statusCode, &openapi3.ResponseRef{Value: success})

	errorRef := openapi3.NewSchemaRef("#/components/schemas/ErrorResponse", nil)
	for _, e := range []struct {
		status, desc string
		headers      bool
	}{
		{"401", "Missing or invalid API key", false},
		{"403", "API key lacks the required permission", true},
		{"429", "Hourly rate limit exceeded", true},
		{"500", "Internal server error", false},
	} {
		desc := e.desc
		resp := &openapi3.Response{
			Description: &desc,
			Content:     openapi3.NewContentWithJSONSchemaRef(errorRef),
		}
		if e.headers {
			resp.Headers = rateLimitHeaders()
		}
		responses.Set(e.status, &openapi3.ResponseRef{Value: resp})
	}
	return responses
}

// ─── Naming Helpers ─────────────────────────────────────────────────────────

// sanitizeName replaces anything but ASCII letters, digits and underscores.
func sanitizeName(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}

// capitalize returns a string with its first character uppercased.
func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
