package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/xeipuuv/gojsonschema"

	"github.com/dmschema/migrate/internal/datamodel"
)

// datamodelJSONSchema is a deliberately loose JSON Schema for the CLI's
// serialized-datamodel document format: enough structure to catch a
// malformed file (wrong top-level shape, models without a name) before it
// reaches json.Unmarshal, without re-implementing a schema language parser.
const datamodelJSONSchema = `{
	"type": "object",
	"properties": {
		"Models": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["Name", "Fields"],
				"properties": {
					"Name": {"type": "string", "minLength": 1},
					"Fields": {"type": "array"}
				}
			}
		},
		"Enums": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["Name", "Values"],
				"properties": {
					"Name": {"type": "string", "minLength": 1}
				}
			}
		}
	}
}`

// LoadDatamodel reads a serialized datamodel.Datamodel document from path,
// validating its shape against datamodelJSONSchema before decoding — this is
// the "minimal textual loader" for CLI convenience; it is not a parser for
// any datamodel authoring language.
func LoadDatamodel(path string) (*datamodel.Datamodel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	schemaLoader := gojsonschema.NewStringLoader(datamodelJSONSchema)
	docLoader := gojsonschema.NewBytesLoader(data)
	result, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil {
		return nil, fmt.Errorf("validating %s: %w", path, err)
	}
	if !result.Valid() {
		msg := "datamodel document does not match the expected shape:"
		for _, e := range result.Errors() {
			msg += "\n  - " + e.String()
		}
		return nil, fmt.Errorf("%s", msg)
	}

	var dm datamodel.Datamodel
	if err := json.Unmarshal(data, &dm); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &dm, nil
}

// SaveDatamodel writes dm as indented JSON to path, the inverse of LoadDatamodel.
func SaveDatamodel(path string, dm *datamodel.Datamodel) error {
	data, err := json.MarshalIndent(dm, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding datamodel: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
