package openapi

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/getkin/kin-openapi/openapi3"
)

func testResources() []Resource {
	return []Resource{
		{Name: "contacts", Description: "CRM contacts"},
		{Name: "opportunities", Description: "Sales pipeline"},
	}
}

// ─── GenerateExternalSpec Tests ─────────────────────────────────────────────

func TestGenerateExternalSpec_Info(t *testing.T) {
	doc := GenerateExternalSpec("http://localhost:8080/", "", testResources())

	if doc.OpenAPI != "3.1.0" {
		t.Errorf("OpenAPI version = %q, want %q", doc.OpenAPI, "3.1.0")
	}
	if doc.Info == nil || doc.Info.Version != "1.0.0" {
		t.Fatalf("Info = %+v, want default version 1.0.0", doc.Info)
	}
	if len(doc.Servers) != 1 || doc.Servers[0].URL != "http://localhost:8080/api/v1/external" {
		t.Errorf("Servers = %+v", doc.Servers)
	}
}

func TestGenerateExternalSpec_SecuritySchemes(t *testing.T) {
	doc := GenerateExternalSpec("http://localhost:8080", "1.2.3", nil)

	apiKey, ok := doc.Components.SecuritySchemes["apiKey"]
	if !ok {
		t.Fatal("apiKey security scheme not found")
	}
	if apiKey.Value.In != "header" || apiKey.Value.Name != "X-API-Key" {
		t.Errorf("apiKey = %+v", apiKey.Value)
	}
	query, ok := doc.Components.SecuritySchemes["queryKey"]
	if !ok || query.Value.In != "query" || query.Value.Name != "api_key" {
		t.Errorf("queryKey scheme missing or wrong: %+v", query)
	}
	if bearer := doc.Components.SecuritySchemes["bearerKey"]; bearer == nil || bearer.Value.Scheme != "bearer" {
		t.Error("bearerKey scheme missing")
	}
	if len(doc.Security) != 3 {
		t.Errorf("Security requirements count = %d, want 3", len(doc.Security))
	}
}

func TestGenerateExternalSpec_ResourcePermissions(t *testing.T) {
	doc := GenerateExternalSpec("http://localhost:8080", "", testResources())

	tests := []struct {
		path   string
		method string
		want   string
	}{
		{"/contacts", "GET", "contacts:read"},
		{"/contacts", "POST", "contacts:write"},
		{"/contacts/{id}", "GET", "contacts:read"},
		{"/contacts/{id}", "PUT", "contacts:write"},
		{"/contacts/{id}", "PATCH", "contacts:write"},
		{"/contacts/{id}", "DELETE", "contacts:delete"},
		{"/opportunities/{id}", "DELETE", "opportunities:delete"},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			item := doc.Paths.Value(tt.path)
			if item == nil {
				t.Fatalf("path %s not found", tt.path)
			}
			op := item.GetOperation(tt.method)
			if op == nil {
				t.Fatalf("%s %s not documented", tt.method, tt.path)
			}
			if got := op.Extensions[ExtRequiredPermission]; got != tt.want {
				t.Errorf("%s = %v, want %q", ExtRequiredPermission, got, tt.want)
			}
			if op.Responses.Value("429") == nil {
				t.Error("429 response not documented")
			}
		})
	}
}

func TestGenerateExternalSpec_MePath(t *testing.T) {
	doc := GenerateExternalSpec("http://localhost:8080", "", nil)
	item := doc.Paths.Value("/me")
	if item == nil || item.Get == nil {
		t.Fatal("/me GET not documented")
	}
	if _, ok := item.Get.Extensions[ExtRequiredPermission]; ok {
		t.Error("/me should not require a permission")
	}
	ok := item.Get.Responses.Value("200")
	if ok == nil || ok.Value.Headers["X-RateLimit-Remaining"] == nil {
		t.Error("200 response should document rate limit headers")
	}
	if doc.Paths.Len() != 1 {
		t.Errorf("paths = %d, want only /me without resources", doc.Paths.Len())
	}
}

func TestGenerateExternalSpec_ErrorResponseSchema(t *testing.T) {
	doc := GenerateExternalSpec("http://localhost:8080", "", nil)
	errSchema := doc.Components.Schemas["ErrorResponse"]
	if errSchema == nil {
		t.Fatal("ErrorResponse schema missing")
	}
	inner := errSchema.Value.Properties["error"]
	if inner == nil {
		t.Fatal("error property missing")
	}
	code := inner.Value.Properties["code"]
	if code == nil || !code.Value.Type.Is("string") {
		t.Error("error.code should be a string")
	}
}

func TestGenerateExternalSpec_Validates(t *testing.T) {
	doc := GenerateExternalSpec("http://localhost:8080", "", testResources())

	// Round-trip through JSON so the loader resolves component refs.
	raw, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	loaded, err := openapi3.NewLoader().LoadFromData(raw)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := loaded.Validate(context.Background()); err != nil {
		t.Errorf("generated document is invalid: %v", err)
	}
}

// ─── Naming Helper Tests ────────────────────────────────────────────────────

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"contacts", "contacts"},
		{"sales-leads", "sales_leads"},
		{"a.b c", "a_b_c"},
	}
	for _, tt := range tests {
		if got := sanitizeName(tt.in); got != tt.want {
			t.Errorf("sanitizeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCapitalize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"list", "List"},
		{"", ""},
		{"a", "A"},
	}
	for _, tt := range tests {
		if got := capitalize(tt.in); got != tt.want {
			t.Errorf("capitalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
