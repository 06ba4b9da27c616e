package api

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// payloadSchemaJSON is the minimal ingress payload contract. Anything inside
// data is opaque and carried to delivery verbatim; extra top-level fields are
// rejected.
const payloadSchemaJSON = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"properties": {
		"id":    {"type": "string"},
		"event": {"type": "string"},
		"data":  {"type": "object"}
	},
	"required": ["id", "event"],
	"additionalProperties": false
}`

var payloadSchema = jsonschema.MustCompileString("ingress-payload.json", payloadSchemaJSON)

// validatePayload checks a decoded payload against the ingress contract and
// returns one message per violated field.
func validatePayload(doc any) []string {
	err := payloadSchema.Validate(doc)
	if err == nil {
		return nil
	}
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return []string{err.Error()}
	}
	return flattenValidation(ve)
}

func flattenValidation(ve *jsonschema.ValidationError) []string {
	if len(ve.Causes) == 0 {
		loc := strings.TrimPrefix(ve.InstanceLocation, "/")
		if loc == "" {
			loc = "body"
		}
		return []string{fmt.Sprintf("%s: %s", loc, ve.Message)}
	}
	var msgs []string
	for _, cause := range ve.Causes {
		msgs = append(msgs, flattenValidation(cause)...)
	}
	return msgs
}
