package tool

import (
	"encoding/json"

	"github.com/m-mizutani/goerr/v2"
)

// DecodeArgs converts function call arguments into a typed input struct
func DecodeArgs(args map[string]any, v any) error {
	raw, err := json.Marshal(args)
	if err != nil {
		return goerr.Wrap(err, "failed to marshal arguments")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return goerr.Wrap(err, "failed to parse arguments", goerr.V("args", string(raw)))
	}
	return nil
}
