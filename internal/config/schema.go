package config

import (
	_ "embed"
	"fmt"
	"sync"

	"github.com/kaptinlin/jsonschema"
)

//go:embed schema.json
var schemaJSON []byte

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func loadSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiledSchema, schemaErr = compiler.Compile(schemaJSON)
	})
	return compiledSchema, schemaErr
}

// validateSchema checks the JSON form of a config document against the
// embedded schema.
func validateSchema(doc []byte) error {
	schema, err := loadSchema()
	if err != nil {
		return fmt.Errorf("compiling config schema: %w", err)
	}
	result := schema.ValidateJSON(doc)
	if result.IsValid() {
		return nil
	}
	return fmt.Errorf("config schema validation failed: %v", result.Errors)
}
