package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/hazyhaar/docsum/kit"
)

// summarizeSchema accepts document ids as integers or digit strings. A
// missing files list means no documents.
const summarizeSchema = `{
  "type": "object",
  "properties": {
    "files": {
      "type": "array",
      "items": {
        "anyOf": [
          {"type": "integer"},
          {"type": "string", "pattern": "^\\s*[-+]?[0-9]+\\s*$"}
        ]
      }
    }
  }
}`

var (
	errFilesNotList = kit.BadRequest("files must be a list of IDs")
	errBadFileIDs   = kit.BadRequest("Invalid file IDs")
)

func compileSchema(name, src string) (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	if err := c.AddResource(name, strings.NewReader(src)); err != nil {
		return nil, fmt.Errorf("add schema %s: %w", name, err)
	}
	s, err := c.Compile(name)
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", name, err)
	}
	return s, nil
}

// parseFileIDs validates a summarize body and returns its ids in request
// order.
func parseFileIDs(schema *jsonschema.Schema, body []byte) ([]int64, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, errFilesNotList
	}
	if err := schema.Validate(v); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) && itemFailure(ve) {
			return nil, errBadFileIDs
		}
		return nil, errFilesNotList
	}

	items, _ := v.(map[string]any)["files"].([]any)
	ids := make([]int64, 0, len(items))
	for _, it := range items {
		id, ok := toID(it)
		if !ok {
			return nil, errBadFileIDs
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// itemFailure reports whether any leaf failure points inside the files array.
func itemFailure(ve *jsonschema.ValidationError) bool {
	if len(ve.Causes) == 0 {
		return strings.HasPrefix(ve.InstanceLocation, "/files/")
	}
	for _, c := range ve.Causes {
		if itemFailure(c) {
			return true
		}
	}
	return false
}

func toID(v any) (int64, bool) {
	var s string
	switch t := v.(type) {
	case json.Number:
		s = t.String()
	case string:
		s = strings.TrimSpace(t)
	default:
		return 0, false
	}
	// Ids below 1 are valid input that match no document.
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, true
	}
	// Integral floats such as 3.0 pass the schema.
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) || f < math.MinInt64 || f > math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}
