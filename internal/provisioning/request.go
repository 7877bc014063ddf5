package provisioning

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// externalIDField is the request field carrying the caller's identifier.
const externalIDField = "id"

// coordinateRanges bounds attributes that carry a WGS84 position.
var coordinateRanges = map[string][2]float64{
	"latitude":  {-90, 90},
	"longitude": {-180, 180},
}

// Request is one inbound registration plus the id the API layer assigned
// to the HTTP request. Fields holds the decoded JSON body; when it is nil,
// Body is decoded during validation so malformed bodies are rejected like
// any other invalid request.
type Request struct {
	RequestID string
	Fields    map[string]any
	Body      io.Reader
}

// Registration is a validated request, ready to be provisioned.
type Registration struct {
	ExternalID string
	EntityType string

	// Values holds coerced attribute values keyed by attribute name.
	// Optional attributes absent from the request are not present.
	Values map[string]any
}

// DecodeFields reads a JSON object body. Numbers are kept as json.Number so
// coercion sees the caller's exact text.
func DecodeFields(r io.Reader) (map[string]any, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		if errors.Is(err, io.EOF) {
			return map[string]any{}, nil
		}
		return nil, &ValidationError{Reason: "Request body must be a JSON object"}
	}
	if fields == nil {
		return map[string]any{}, nil
	}
	return fields, nil
}

// validation controls how strictly requests are checked.
type validation struct {
	anonymousID string
	requireID   bool
}

// validate checks fields against schema. Missing required fields are
// reported before malformed ones, both in schema order.
func (v validation) validate(fields map[string]any, schema EntitySchema) (Registration, error) {
	var missing, invalid []string

	externalID, present, ok := coerceExternalID(fields[externalIDField])
	switch {
	case !present && v.requireID:
		missing = append(missing, externalIDField)
	case !present:
		externalID = v.anonymousID
	case !ok:
		invalid = append(invalid, externalIDField)
	}

	values := make(map[string]any, len(schema.Attributes))
	for _, attr := range schema.Attributes {
		raw, present := fields[attr.Name]
		if !present || isBlank(raw) {
			if attr.Required {
				missing = append(missing, attr.Name)
			}
			continue
		}

		value, err := coerce(attr, raw)
		if err != nil {
			invalid = append(invalid, attr.Name)
			continue
		}
		values[attr.Name] = value
	}

	if len(missing) > 0 {
		return Registration{}, &ValidationError{Missing: missing}
	}
	if len(invalid) > 0 {
		return Registration{}, &ValidationError{Invalid: invalid}
	}

	return Registration{
		ExternalID: externalID,
		EntityType: schema.Type,
		Values:     values,
	}, nil
}

func isBlank(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	default:
		return false
	}
}

// coerceExternalID accepts strings and numbers. present is false for
// absent, null and blank values.
func coerceExternalID(v any) (id string, present, ok bool) {
	if isBlank(v) {
		return "", false, false
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t), true, true
	case json.Number:
		return t.String(), true, true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true, true
	default:
		return "", true, false
	}
}

func coerce(attr Attribute, raw any) (any, error) {
	switch attr.Type {
	case TypeFloat, TypeNumber:
		f, err := toFloat(raw)
		if err != nil {
			return nil, err
		}
		if r, ok := coordinateRanges[attr.Name]; ok && (f < r[0] || f > r[1]) {
			return nil, fmt.Errorf("%s out of range [%g, %g]", attr.Name, r[0], r[1])
		}
		return f, nil

	case TypeInteger:
		f, err := toFloat(raw)
		if err != nil {
			return nil, err
		}
		if f != math.Trunc(f) || math.Abs(f) > 1<<53 {
			return nil, fmt.Errorf("%s is not an integer", attr.Name)
		}
		return int64(f), nil

	case TypeBoolean:
		switch t := raw.(type) {
		case bool:
			return t, nil
		case string:
			return strconv.ParseBool(strings.TrimSpace(t))
		}
		return nil, fmt.Errorf("%s is not a boolean", attr.Name)

	default:
		switch t := raw.(type) {
		case string:
			return t, nil
		case json.Number:
			return t.String(), nil
		case bool:
			return strconv.FormatBool(t), nil
		}
		return nil, fmt.Errorf("%s is not a string", attr.Name)
	}
}

// toFloat accepts JSON numbers and numeric strings; NaN and infinities are
// rejected.
func toFloat(raw any) (float64, error) {
	var f float64
	var err error

	switch t := raw.(type) {
	case json.Number:
		f, err = t.Float64()
	case float64:
		f = t
	case int:
		f = float64(t)
	case string:
		f, err = strconv.ParseFloat(strings.TrimSpace(t), 64)
	default:
		return 0, fmt.Errorf("unsupported value type %T", raw)
	}
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("value is not finite")
	}
	return f, nil
}
