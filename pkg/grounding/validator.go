package grounding

import (
	"encoding/json"
	"strings"

	"github.com/musicofhel/enterprise-pipeline/pkg/models"
)

// routeSchema is the minimal output shape for one route: the required
// top-level properties and whether extra properties are allowed.
type routeSchema struct {
	required   []string
	additional bool
}

// OutputValidator checks the generated answer against the route's JSON
// shape. Plain-text answers are wrapped into the route's minimal object
// before validation. Structure only; never content safety, and an
// invalid shape never blocks the response.
type OutputValidator struct {
	schemas map[models.RouteKind]routeSchema
}

// NewOutputValidator builds the per-route schema table.
func NewOutputValidator() *OutputValidator {
	return &OutputValidator{
		schemas: map[models.RouteKind]routeSchema{
			models.RouteRAG:    {required: []string{"answer"}, additional: true},
			models.RouteDirect: {required: []string{"answer"}, additional: true},
		},
	}
}

// Validate reports whether the answer satisfies the route's shape.
// Routes without a registered schema are vacuously valid.
func (v *OutputValidator) Validate(answer string, route models.RouteKind) bool {
	schema, ok := v.schemas[route]
	if !ok {
		return true
	}

	payload := wrap(answer)
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(payload), &obj); err != nil {
		return false
	}

	for _, field := range schema.required {
		raw, ok := obj[field]
		if !ok {
			return false
		}
		// Required fields must be nonempty strings.
		var s string
		if err := json.Unmarshal(raw, &s); err != nil || s == "" {
			return false
		}
	}

	if !schema.additional && len(obj) > len(schema.required) {
		return false
	}
	return true
}

// wrap turns a plain-text answer into the minimal route object. Answers
// that already look like JSON objects pass through unchanged.
func wrap(answer string) string {
	trimmed := strings.TrimSpace(answer)
	if strings.HasPrefix(trimmed, "{") {
		return trimmed
	}
	encoded, err := json.Marshal(map[string]string{"answer": answer})
	if err != nil {
		return "{}"
	}
	return string(encoded)
}
