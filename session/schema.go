package session

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// sessionSchema constrains the persisted session format.  Decode rejects
// data that violates it so a truncated or hand-edited save file degrades to
// a fresh session instead of corrupting the graph.
const sessionSchema = `
{
	"type": "object",
	"required": ["neuron_graph"],
	"properties": {
		"uuid": { "type": "string" },
		"neuron_graph": {
			"type": "object",
			"patternProperties": {
				"^[0-9]+$": {
					"type": "array",
					"items": { "type": "integer", "minimum": 0 }
				}
			},
			"additionalProperties": false
		},
		"edges_to_set": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["locs", "edge"],
				"properties": {
					"locs": {
						"type": "array",
						"minItems": 2,
						"maxItems": 2,
						"items": {
							"type": "array",
							"minItems": 3,
							"maxItems": 3,
							"items": { "type": "integer" }
						}
					},
					"edge": {
						"type": "array",
						"minItems": 2,
						"maxItems": 2,
						"items": { "type": "integer", "minimum": 0 }
					}
				}
			}
		},
		"edges_to_delete": {
			"type": "array",
			"items": {
				"type": "array",
				"minItems": 2,
				"maxItems": 2,
				"items": { "type": "integer", "minimum": 0 }
			}
		},
		"action_history": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["kind", "graph"],
				"properties": {
					"kind": {
						"enum": ["add_segment", "del_segment", "set", "del", "split"]
					},
					"graph": { "type": "object" },
					"edges": { "type": "array" }
				}
			}
		},
		"branch_points": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["loc", "visited"],
				"properties": {
					"loc": {
						"type": "array",
						"minItems": 3,
						"maxItems": 3,
						"items": { "type": "number" }
					},
					"visited": { "type": "boolean" }
				}
			}
		},
		"merger_locations": {
			"type": "array",
			"items": {
				"type": "array",
				"minItems": 3,
				"maxItems": 3,
				"items": { "type": "number" }
			}
		},
		"last_position": {
			"type": "array",
			"minItems": 3,
			"maxItems": 3,
			"items": { "type": "number" }
		},
		"saved_at": { "type": "string" }
	}
}`

var compiledSchema *jsonschema.Schema

func init() {
	var err error
	compiledSchema, err = jsonschema.CompileString("session.json", sessionSchema)
	if err != nil {
		panic(fmt.Sprintf("bad session schema: %v", err))
	}
}

// Validate checks persisted session JSON against the session schema.
func Validate(data []byte) error {
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("session data is not valid JSON: %v", err)
	}
	if err := compiledSchema.Validate(v); err != nil {
		return fmt.Errorf("session data doesn't fit session schema: %v", err)
	}
	return nil
}
