package validation

import (
	"fmt"
	"strings"
)

// MaxTagOpsPerPatch caps how many tags a single patch may write, whether
// inserted one by one or set as a whole array
const MaxTagOpsPerPatch = 32

// PatchValidator validates JSON Patch operations against the editable
// fields of a material
type PatchValidator struct {
	fields []string
}

// NewPatchValidator creates a validator allowing edits below the given
// top-level fields
func NewPatchValidator(fields ...string) *PatchValidator {
	return &PatchValidator{fields: fields}
}

// ValidateOperations validates all patch operations
func (v *PatchValidator) ValidateOperations(operations []map[string]interface{}) error {
	tagOps := 0

	for i, op := range operations {
		if err := v.validateOperation(op, i); err != nil {
			return err
		}

		tagOps += tagsWritten(op)
	}

	if tagOps > MaxTagOpsPerPatch {
		return fmt.Errorf("patch validation failed: cannot add more than %d tags per patch (attempted: %d)", MaxTagOpsPerPatch, tagOps)
	}

	return nil
}

// validateOperation validates a single operation
func (v *PatchValidator) validateOperation(op map[string]interface{}, index int) error {
	opType, ok := op["op"].(string)
	if !ok {
		return fmt.Errorf("operation %d: missing or invalid 'op' field", index)
	}

	path, ok := op["path"].(string)
	if !ok {
		return fmt.Errorf("operation %d: missing or invalid 'path' field", index)
	}
	if !v.editable(path) {
		return fmt.Errorf("operation %d: path %q is not editable", index, path)
	}

	switch opType {
	case "add", "replace", "test":
		if _, ok := op["value"]; !ok {
			return fmt.Errorf("operation %d: 'value' required for %s operation", index, opType)
		}
		if path == "/tags" {
			if _, ok := op["value"].([]interface{}); !ok {
				return fmt.Errorf("operation %d: tags must be an array, got %T", index, op["value"])
			}
		}

	case "remove":
		return nil

	default:
		return fmt.Errorf("operation %d: unsupported operation type: %s", index, opType)
	}

	return nil
}

// tagsWritten counts the tags op would write
func tagsWritten(op map[string]interface{}) int {
	path := op["path"].(string)
	switch op["op"] {
	case "add", "replace":
		if path == "/tags" {
			return len(op["value"].([]interface{}))
		}
		if op["op"] == "add" && strings.HasPrefix(path, "/tags/") {
			return 1
		}
	}
	return 0
}

func (v *PatchValidator) editable(path string) bool {
	for _, f := range v.fields {
		if path == "/"+f || strings.HasPrefix(path, "/"+f+"/") {
			return true
		}
	}
	return false
}
