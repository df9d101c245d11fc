package patient

import (
	"net/http"

	"github.com/cloudreports/patients/internal/platform/openapi"
)

// DescribeAPI registers the JSON API routes and bodies with g.
func (h *Handler) DescribeAPI(g *openapi.Generator) {
	g.AddSchema("Record", map[string]interface{}{
		"type":                 "object",
		"description":          "One patient row keyed by column name. Values are strings, numbers, booleans or null.",
		"additionalProperties": true,
	})
	g.AddSchema("Match", map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"position": map[string]string{"type": "integer"},
			"record":   map[string]string{"$ref": "#/components/schemas/Record"},
		},
	})
	g.AddSchema("SearchResult", map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"columns": map[string]interface{}{"type": "array", "items": map[string]string{"type": "string"}},
			"matches": map[string]interface{}{"type": "array", "items": map[string]string{"$ref": "#/components/schemas/Match"}},
		},
	})
	g.AddSchema("SaveRequest", map[string]interface{}{
		"type":     "object",
		"required": []string{"name", "id", "edits"},
		"properties": map[string]interface{}{
			"name":   map[string]string{"type": "string"},
			"id":     map[string]string{"type": "integer"},
			"editor": map[string]string{"type": "string", "description": "Defaults to the logged-in user."},
			"edits": map[string]interface{}{
				"type":                 "object",
				"description":          "Cells to change, keyed by grid row (index into the search matches).",
				"additionalProperties": map[string]string{"$ref": "#/components/schemas/Record"},
			},
		},
	})
	g.AddSchema("SaveResult", map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"columns":      map[string]interface{}{"type": "array", "items": map[string]string{"type": "string"}},
			"matches":      map[string]interface{}{"type": "array", "items": map[string]string{"$ref": "#/components/schemas/Match"}},
			"record":       map[string]string{"$ref": "#/components/schemas/Record"},
			"filename":     map[string]string{"type": "string"},
			"artifact_url": map[string]string{"type": "string"},
		},
	})
	g.AddSchema("PatientPage", map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"columns":  map[string]interface{}{"type": "array", "items": map[string]string{"type": "string"}},
			"data":     map[string]interface{}{"type": "array", "items": map[string]string{"$ref": "#/components/schemas/Record"}},
			"total":    map[string]string{"type": "integer"},
			"limit":    map[string]string{"type": "integer"},
			"offset":   map[string]string{"type": "integer"},
			"has_more": map[string]string{"type": "boolean"},
		},
	})
	g.AddSchema("CSV", map[string]interface{}{"type": "string", "format": "binary"})

	unauthorized := openapi.Response{Description: "Login required"}
	storeDown := openapi.Response{Description: "Patient store unavailable"}

	g.AddOperations(
		openapi.Operation{
			Method:  http.MethodGet,
			Path:    "/patients",
			ID:      "listPatients",
			Summary: "List patient rows in table order",
			Tag:     "Patients",
			Params: []openapi.Param{
				{Name: "limit", Type: "integer", Description: "Page size, at most 100"},
				{Name: "offset", Type: "integer"},
			},
			Responses: map[int]openapi.Response{
				http.StatusOK:           {Description: "One page of rows", Schema: "PatientPage"},
				http.StatusUnauthorized: unauthorized,
				http.StatusBadGateway:   storeDown,
			},
		},
		openapi.Operation{
			Method:  http.MethodGet,
			Path:    "/patients/search",
			ID:      "searchPatients",
			Summary: "Find rows by name (case-insensitive) and id",
			Tag:     "Patients",
			Params: []openapi.Param{
				{Name: "name", Required: true},
				{Name: "id", Type: "integer", Required: true},
			},
			Responses: map[int]openapi.Response{
				http.StatusOK:           {Description: "Matching rows", Schema: "SearchResult"},
				http.StatusBadRequest:   {Description: "id is not an integer"},
				http.StatusNotFound:     {Description: "No patient found"},
				http.StatusUnauthorized: unauthorized,
				http.StatusBadGateway:   storeDown,
			},
		},
		openapi.Operation{
			Method:      http.MethodPost,
			Path:        "/patients",
			ID:          "createPatient",
			Summary:     "Add a patient with the next id",
			Tag:         "Patients",
			RequestBody: "Record",
			Responses: map[int]openapi.Response{
				http.StatusCreated:      {Description: "Patient added", Schema: "SaveResult"},
				http.StatusBadRequest:   {Description: "Invalid body"},
				http.StatusUnauthorized: unauthorized,
				http.StatusBadGateway:   storeDown,
			},
		},
		openapi.Operation{
			Method:      http.MethodPatch,
			Path:        "/patients/edits",
			ID:          "savePatientEdits",
			Summary:     "Merge grid edits into the matching rows",
			Tag:         "Patients",
			RequestBody: "SaveRequest",
			Responses: map[int]openapi.Response{
				http.StatusOK:           {Description: "Edits saved", Schema: "SaveResult"},
				http.StatusBadRequest:   {Description: "Invalid body or grid row"},
				http.StatusNotFound:     {Description: "No patient found"},
				http.StatusUnauthorized: unauthorized,
				http.StatusBadGateway:   storeDown,
			},
		},
		openapi.Operation{
			Method:  http.MethodGet,
			Path:    "/patients/export",
			ID:      "exportPatients",
			Summary: "Download the whole table as CSV",
			Tag:     "Export",
			Responses: map[int]openapi.Response{
				http.StatusOK:           {Description: "CSV file", Schema: "CSV", ContentType: "text/csv"},
				http.StatusUnauthorized: unauthorized,
				http.StatusBadGateway:   storeDown,
			},
		},
	)
}
