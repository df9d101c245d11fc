// Package openapi serves an OpenAPI 3.0 document describing the JSON API.
package openapi

import (
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

// Param is a query parameter of an operation.
type Param struct {
	Name        string
	Type        string // "string", "integer"
	Required    bool
	Description string
}

// Operation describes one API route. Path is relative to the API base
// (e.g. "/patients/search").
type Operation struct {
	Method      string
	Path        string
	ID          string
	Summary     string
	Tag         string
	Params      []Param
	RequestBody string // schema name, empty for none
	Responses   map[int]Response
}

// Response describes one status code of an operation. Schema is a component
// schema name; ContentType defaults to application/json.
type Response struct {
	Description string
	Schema      string
	ContentType string
}

// Generator builds the OpenAPI document from registered operations and
// component schemas.
type Generator struct {
	title      string
	version    string
	basePath   string
	cookie     string
	operations []Operation
	schemas    map[string]map[string]interface{}
}

// NewGenerator creates a generator for an API mounted at basePath.
func NewGenerator(title, version, basePath string) *Generator {
	return &Generator{
		title:    title,
		version:  version,
		basePath: basePath,
		schemas:  map[string]map[string]interface{}{"Error": buildErrorSchema()},
	}
}

// UseCookieAuth declares that every operation requires the named session
// cookie.
func (g *Generator) UseCookieAuth(name string) {
	g.cookie = name
}

// AddOperations registers operations.
func (g *Generator) AddOperations(ops ...Operation) {
	g.operations = append(g.operations, ops...)
}

// AddSchema registers a component schema under name.
func (g *Generator) AddSchema(name string, schema map[string]interface{}) {
	g.schemas[name] = schema
}

// GenerateSpec produces the OpenAPI 3.0 spec as a map.
func (g *Generator) GenerateSpec() map[string]interface{} {
	paths := make(map[string]interface{})
	var tags []string
	seen := map[string]bool{}

	for _, op := range g.operations {
		path := op.Path
		item, _ := paths[path].(map[string]interface{})
		if item == nil {
			item = make(map[string]interface{})
			paths[path] = item
		}

		entry := map[string]interface{}{
			"summary":     op.Summary,
			"operationId": op.ID,
			"responses":   g.buildResponses(op.Responses),
		}
		if op.Tag != "" {
			entry["tags"] = []string{op.Tag}
			if !seen[op.Tag] {
				seen[op.Tag] = true
				tags = append(tags, op.Tag)
			}
		}
		if len(op.Params) > 0 {
			entry["parameters"] = buildParameters(op.Params)
		}
		if op.RequestBody != "" {
			entry["requestBody"] = buildRequestBody(op.RequestBody)
		}
		item[strings.ToLower(op.Method)] = entry
	}

	sort.Strings(tags)
	tagList := make([]map[string]string, 0, len(tags))
	for _, t := range tags {
		tagList = append(tagList, map[string]string{"name": t})
	}

	schemas := make(map[string]interface{}, len(g.schemas))
	for name, s := range g.schemas {
		schemas[name] = s
	}

	components := map[string]interface{}{"schemas": schemas}
	spec := map[string]interface{}{
		"openapi": "3.0.3",
		"info": map[string]interface{}{
			"title":   g.title,
			"version": g.version,
		},
		"servers": []map[string]string{
			{"url": g.basePath},
		},
		"tags":       tagList,
		"paths":      paths,
		"components": components,
	}
	if g.cookie != "" {
		components["securitySchemes"] = map[string]interface{}{
			"sessionCookie": map[string]interface{}{
				"type": "apiKey",
				"in":   "cookie",
				"name": g.cookie,
			},
		}
		spec["security"] = []map[string][]string{
			{"sessionCookie": {}},
		}
	}
	return spec
}

func buildParameters(params []Param) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(params))
	for _, p := range params {
		typ := p.Type
		if typ == "" {
			typ = "string"
		}
		param := map[string]interface{}{
			"name":     p.Name,
			"in":       "query",
			"required": p.Required,
			"schema":   map[string]string{"type": typ},
		}
		if p.Description != "" {
			param["description"] = p.Description
		}
		out = append(out, param)
	}
	return out
}

func buildRequestBody(schema string) map[string]interface{} {
	return map[string]interface{}{
		"required": true,
		"content": map[string]interface{}{
			"application/json": map[string]interface{}{
				"schema": map[string]interface{}{
					"$ref": "#/components/schemas/" + schema,
				},
			},
		},
	}
}

// buildResponses adds the shared error body to every 4xx/5xx response that
// does not name its own schema.
func (g *Generator) buildResponses(responses map[int]Response) map[string]interface{} {
	out := make(map[string]interface{}, len(responses))
	for code, r := range responses {
		resp := map[string]interface{}{"description": r.Description}
		schema := r.Schema
		if schema == "" && code >= 400 {
			schema = "Error"
		}
		if schema != "" {
			ct := r.ContentType
			if ct == "" {
				ct = "application/json"
			}
			resp["content"] = map[string]interface{}{
				ct: map[string]interface{}{
					"schema": map[string]interface{}{"$ref": "#/components/schemas/" + schema},
				},
			}
		}
		out[strconv.Itoa(code)] = resp
	}
	return out
}

func buildErrorSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"message": map[string]string{"type": "string"},
		},
	}
}

// RegisterRoutes registers the OpenAPI endpoint.
func (g *Generator) RegisterRoutes(apiGroup *echo.Group) {
	apiGroup.GET("/openapi.json", func(c echo.Context) error {
		return c.JSON(http.StatusOK, g.GenerateSpec())
	})
}
