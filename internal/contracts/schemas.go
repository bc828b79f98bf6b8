package contracts

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"strings"

	"github.com/manzil-bh/manzil-backend/internal/listing"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

const (
	FirmPropertyCreate = "firm_property_create"
	FirmPropertyUpdate = "firm_property_update"
)

//go:embed schemas/*.json
var schemaFS embed.FS

var compiled = map[string]*jsonschema.Schema{}

func init() {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020

	paths, err := fs.Glob(schemaFS, "schemas/*.json")
	if err != nil {
		log.Fatalf("list request schemas: %v", err)
	}
	for _, p := range paths {
		f, err := schemaFS.Open(p)
		if err != nil {
			log.Fatalf("open schema %s: %v", p, err)
		}
		if err := compiler.AddResource(p, f); err != nil {
			log.Fatalf("add schema resource %s: %v", p, err)
		}
		f.Close()
	}

	for _, p := range paths {
		s, err := compiler.Compile(p)
		if err != nil {
			log.Fatalf("compile schema %s: %v", p, err)
		}
		compiled[strings.TrimSuffix(strings.TrimPrefix(p, "schemas/"), ".json")] = s
	}
}

// Validate checks raw against the named request schema. Schema violations
// come back as *listing.ValidationError pointing at the offending field.
func Validate(name string, raw []byte) error {
	s, ok := compiled[name]
	if !ok {
		return fmt.Errorf("no request schema named %q", name)
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return &listing.ValidationError{Msg: "invalid JSON body: " + err.Error()}
	}

	if err := s.Validate(v); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			leaf := deepest(ve)
			return &listing.ValidationError{
				Field: strings.ReplaceAll(strings.TrimPrefix(leaf.InstanceLocation, "/"), "/", "."),
				Msg:   leaf.Message,
			}
		}
		return err
	}
	return nil
}

func deepest(ve *jsonschema.ValidationError) *jsonschema.ValidationError {
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	return ve
}
