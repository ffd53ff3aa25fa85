package profile

import "github.com/google/jsonschema-go/jsonschema"

// Schema reflects the wire shape of an import profile document into a JSON
// Schema, using the same unexported *Raw structs Unmarshal decodes into.
// data_source_config is held as json.RawMessage there and validated by hand,
// so the schema does not describe its inner shape.
// Grounded on original_source/src/bin/build_schema.rs's schemars::schema_for!
// call, translated to github.com/google/jsonschema-go's reflection entry
// point (the approach MacroPower-x's magicschema package also builds on).
func Schema() (*jsonschema.Schema, error) {
	return jsonschema.For[importProfileRaw](nil)
}
