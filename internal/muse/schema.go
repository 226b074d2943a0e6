package muse

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed statblock.schema.json
var statBlockSchema []byte

var statBlockLoader = gojsonschema.NewBytesLoader(statBlockSchema)

func validateStatBlock(doc json.RawMessage) error {
	result, err := gojsonschema.Validate(statBlockLoader, gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return fmt.Errorf("stat block is not valid json: %v", err)
	}
	if result.Valid() {
		return nil
	}
	problems := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		problems = append(problems, e.String())
	}
	return fmt.Errorf("stat block does not match schema: %s", strings.Join(problems, "; "))
}
