package api

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"royalty/internal/services"
)

//go:embed manual_upload.schema.json
var manualUploadSchema []byte

const manualUploadSchemaURL = "royalty:///manual_upload.schema.json"

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func manualSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(manualUploadSchema))
		if err != nil {
			schemaErr = fmt.Errorf("parse manual upload schema: %w", err)
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(manualUploadSchemaURL, doc); err != nil {
			schemaErr = fmt.Errorf("add manual upload schema: %w", err)
			return
		}
		compiledSchema, schemaErr = compiler.Compile(manualUploadSchemaURL)
	})
	return compiledSchema, schemaErr
}

// DecodeManualUpload validates raw JSON against the manual upload schema and
// decodes it. Schema violations are reported as validation errors.
func DecodeManualUpload(data []byte) (ManualUploadRequest, error) {
	schema, err := manualSchema()
	if err != nil {
		return ManualUploadRequest{}, services.Wrap(services.ErrConfiguration, "api", "manual_upload", "schema unavailable", err)
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return ManualUploadRequest{}, services.Wrap(services.ErrValidation, "api", "manual_upload", "payload is not valid JSON", err)
	}
	if err := schema.Validate(inst); err != nil {
		return ManualUploadRequest{}, services.Wrap(services.ErrValidation, "api", "manual_upload", "payload rejected", err)
	}
	var req ManualUploadRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return ManualUploadRequest{}, services.Wrap(services.ErrValidation, "api", "manual_upload", "decode payload", err)
	}
	return req, nil
}

// ValidateManualUpload runs an already decoded request through the schema.
// IPC callers use it since their payload arrives as a Go value.
func ValidateManualUpload(req ManualUploadRequest) error {
	if req.DataToSave == nil {
		req.DataToSave = []ManualUploadItem{}
	}
	data, err := json.Marshal(req)
	if err != nil {
		return services.Wrap(services.ErrValidation, "api", "manual_upload", "encode payload", err)
	}
	_, err = DecodeManualUpload(data)
	return err
}
