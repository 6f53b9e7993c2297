// generate-schema writes the JSON schema of the daemon configuration file.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/invopop/jsonschema"
	"github.com/marmos91/dittovfs/pkg/config"
)

func main() {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
		// Keys match what viper decodes, not the Go field names.
		FieldNameTag: "mapstructure",
	}

	schema := reflector.Reflect(&config.Config{})

	schema.Title = "DittoVFS Configuration"
	schema.Description = "Configuration schema for the DittoVFS daemon"
	schema.Version = "1.0.0"

	if props := schema.Properties; props != nil {
		if mounts, ok := props.Get("mounts"); ok && mounts.Items != nil {
			if typ, ok := mounts.Items.Properties.Get("type"); ok {
				typ.Enum = []any{"local", "mail"}
			}
		}
	}

	schemaJSON, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error marshaling schema: %v\n", err)
		os.Exit(1)
	}

	outputFile := "config.schema.json"
	if len(os.Args) > 1 {
		outputFile = os.Args[1]
	}

	if err := os.WriteFile(outputFile, schemaJSON, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing schema file: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("JSON schema written to %s\n", outputFile)
}
