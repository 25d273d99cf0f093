package utils

import (
	"encoding/json"
	"fmt"
	"runtime"

	"github.com/rs/zerolog/log"
)

// JSONUnmarshalAndPrintOnError decodes JSON and logs the raw message on error.
func JSONUnmarshalAndPrintOnError(b []byte, v any) error {
	err := json.Unmarshal(b, v)
	if err != nil {
		log.Err(err).
			Str("parentCaller", getCaller()).
			Str("raw_message", string(b)).
			Msg("failed to decode JSON")
	}
	return err
}

func getCaller() string {
	// Skip 2 frames to get the caller of the function calling this function
	_, file, line, ok := runtime.Caller(2)
	if !ok {
		return "unknown"
	}
	return fmt.Sprintf("%s:%d", file, line)
}
