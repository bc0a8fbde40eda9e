// Package config validates connection configuration documents before a team
// is subscribed.
package config

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// connectionSchema describes a subscribe request body. Validation happens
// before binding so malformed documents fail with a field-level message
// instead of a decode error.
var connectionSchema = map[string]any{
	"type":                 "object",
	"required":             []string{"team_id", "name", "wfm_bu_id", "time_zone", "credentials"},
	"additionalProperties": false,
	"properties": map[string]any{
		"team_id":   map[string]any{"type": "string", "minLength": 1},
		"name":      map[string]any{"type": "string", "minLength": 3},
		"wfm_bu_id": map[string]any{"type": "string", "minLength": 1},
		"time_zone": map[string]any{"type": "string", "minLength": 1},
		"past_weeks": map[string]any{
			"type": "integer", "minimum": 0, "maximum": 52,
		},
		"future_weeks": map[string]any{
			"type": "integer", "minimum": 0, "maximum": 52,
		},
		"week_start_day": map[string]any{
			"type": "integer", "minimum": 0, "maximum": 6,
		},
		"sync_interval_seconds": map[string]any{"type": "integer"},
		"recurrence_cron":       map[string]any{"type": "string"},
		"continue_on_error":     map[string]any{"type": "boolean"},
		"draft_mode":            map[string]any{"type": "boolean"},
		"clear_on_first_run":    map[string]any{"type": "boolean"},
		"batch_size": map[string]any{
			"type": "integer", "minimum": 1, "maximum": 500,
		},
		"credentials": map[string]any{
			"type":     "object",
			"required": []string{"wfm_client_id", "wfm_client_secret", "shifts_api_token"},
			"properties": map[string]any{
				"wfm_client_id":     map[string]any{"type": "string", "minLength": 1},
				"wfm_client_secret": map[string]any{"type": "string", "minLength": 1},
				"shifts_api_token":  map[string]any{"type": "string", "minLength": 1},
			},
		},
	},
}

// ValidateConnection checks a raw subscribe document against the connection
// schema.
func ValidateConnection(document []byte) error {
	schemaLoader := gojsonschema.NewGoLoader(connectionSchema)
	dataLoader := gojsonschema.NewBytesLoader(document)

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return fmt.Errorf("failed to validate connection config: %w", err)
	}

	if !result.Valid() {
		var details []string
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}

		return fmt.Errorf("invalid connection config: %s", strings.Join(details, "; "))
	}

	return nil
}
