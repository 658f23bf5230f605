package decision

import (
	"errors"
	"fmt"
	"strings"

	"tradebot/internal/pkg/jsonutil"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"
)

var ErrNoDecision = errors.New("no decision found in input")

// Parse extracts decisions from a JSON object, a JSON array of objects, or
// model output that embeds either. Each object must pass the structural schema.
func Parse(raw string) ([]Fields, error) {
	payload, ok := jsonutil.ExtractJSON(raw)
	if !ok {
		return nil, ErrNoDecision
	}
	parsed := gjson.Parse(payload)
	var nodes []gjson.Result
	switch {
	case parsed.IsArray():
		nodes = parsed.Array()
	case parsed.IsObject():
		if inner := parsed.Get("decisions"); inner.IsArray() {
			nodes = inner.Array()
		} else {
			nodes = []gjson.Result{parsed}
		}
	default:
		return nil, fmt.Errorf("decision payload must be an object or array")
	}
	if len(nodes) == 0 {
		return nil, ErrNoDecision
	}
	schema, err := compiledSchema()
	if err != nil {
		return nil, fmt.Errorf("compile decision schema: %w", err)
	}
	out := make([]Fields, 0, len(nodes))
	for i, node := range nodes {
		if !node.IsObject() {
			return nil, fmt.Errorf("decision #%d: must be an object", i+1)
		}
		obj, _ := node.Value().(map[string]any)
		if err := schema.Validate(obj); err != nil {
			return nil, fmt.Errorf("decision #%d: %s", i+1, schemaMessage(err))
		}
		out = append(out, Fields(obj))
	}
	return out, nil
}

// ParseOne is Parse for inputs that must hold exactly one decision.
func ParseOne(raw string) (Fields, error) {
	all, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	if len(all) != 1 {
		return nil, fmt.Errorf("expected one decision, got %d", len(all))
	}
	return all[0], nil
}

func schemaMessage(err error) string {
	var verr *jsonschema.ValidationError
	if errors.As(err, &verr) && len(verr.Causes) > 0 {
		parts := make([]string, 0, len(verr.Causes))
		for _, c := range verr.Causes {
			parts = append(parts, strings.TrimPrefix(c.InstanceLocation, "/")+": "+c.Message)
		}
		return strings.Join(parts, "; ")
	}
	return err.Error()
}
