package tool

import (
	"errors"
	"fmt"
	"slices"

	"github.com/hupe1980/taskmesh/core"
)

// ContextToolName is the name under which NewContextTool registers.
const ContextToolName = "context_store"

// NewContextTool returns a tool that lets a model read and write the run's
// context store. Supported operations: get, put, delete, list.
func NewContextTool() *FunctionTool {
	return NewFunctionTool(
		ContextToolName,
		"Reads and writes values shared by every step of the current run. "+
			"Supports operations: get, put, delete, list.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"operation": map[string]any{
					"type":        "string",
					"enum":        []string{"get", "put", "delete", "list"},
					"description": "The operation to perform",
				},
				"key": map[string]any{
					"type":        "string",
					"description": "Key for get, put and delete",
				},
				"value": map[string]any{
					"description": "Value for put (any type)",
				},
			},
			"required": []string{"operation"},
		},
		callContextTool,
	)
}

func callContextTool(rc *core.RunContext, args map[string]any) (any, error) {
	operation, _ := args["operation"].(string)

	if operation == "list" {
		return map[string]any{"keys": slices.Collect(rc.Store.Keys())}, nil
	}

	key, ok := args["key"].(string)
	if !ok || key == "" {
		return nil, NewToolError(ContextToolName, fmt.Sprintf("key parameter is required for %s operation", operation), CodeValidation)
	}

	switch operation {
	case "get":
		value, err := rc.Store.Get(key)
		if errors.Is(err, core.ErrKeyNotFound) {
			return map[string]any{"key": key, "exists": false, "value": nil}, nil
		}
		return map[string]any{"key": key, "exists": true, "value": value}, nil
	case "put":
		rc.Store.Put(key, args["value"])
		return map[string]any{"key": key, "success": true}, nil
	case "delete":
		rc.Store.Delete(key)
		return map[string]any{"key": key, "success": true}, nil
	default:
		return nil, NewToolError(ContextToolName, fmt.Sprintf("unknown operation: %s", operation), CodeValidation)
	}
}
