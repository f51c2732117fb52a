package config

import (
	"encoding/json"
	"reflect"
	"sync"
	"time"

	"github.com/invopop/jsonschema"
)

// SchemaID identifies the published configuration schema.
const SchemaID = "https://github.com/haasonsaas/canvasd/schema/config.json"

var (
	schemaOnce sync.Once
	schemaJSON []byte
	schemaErr  error
)

// JSONSchema describes the canvasd configuration file for editors and the
// `canvasd config schema` command. Properties use the YAML keys, and
// durations are strings such as "15s".
func JSONSchema() ([]byte, error) {
	schemaOnce.Do(func() {
		reflector := &jsonschema.Reflector{
			FieldNameTag:               "yaml",
			ExpandedStruct:             true,
			DoNotReference:             true,
			RequiredFromJSONSchemaTags: true,
			Mapper:                     durationAsString,
		}
		schema := reflector.Reflect(&Config{})
		schema.ID = jsonschema.ID(SchemaID)
		schema.Title = "canvasd configuration"
		schema.Description = "Server, storage, render, ingest, artifact mirror, logging and tracing settings."
		schemaJSON, schemaErr = json.MarshalIndent(schema, "", "  ")
	})
	return schemaJSON, schemaErr
}

// durationAsString matches how yaml.v3 reads time.Duration fields.
func durationAsString(t reflect.Type) *jsonschema.Schema {
	if t != reflect.TypeOf(time.Duration(0)) {
		return nil
	}
	return &jsonschema.Schema{
		Type:        "string",
		Pattern:     `^(\d+(\.\d+)?(ns|us|µs|ms|s|m|h))+$`,
		Description: "Go duration such as 250ms, 15s or 1h30m.",
	}
}
