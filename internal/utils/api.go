package utils

import (
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// RequireStringParam retrieves a non-empty string from the URL query
// parameters, recording a field error when it is missing.
func RequireStringParam(params url.Values, key string, fieldErrors map[string][]string) (string, map[string][]string) {
	if fieldErrors == nil {
		fieldErrors = make(map[string][]string)
	}

	val := params.Get(key)
	if val == "" {
		fieldErrors[key] = append(fieldErrors[key], fmt.Sprintf("Missing required field %q.", key))
	}
	return val, fieldErrors
}

// ParseEpochMillisParam parses an epoch-milliseconds timestamp from the URL
// query parameters. An absent value yields the zero time without an error;
// an unparsable one records a field error.
func ParseEpochMillisParam(params url.Values, key string, fieldErrors map[string][]string) (time.Time, map[string][]string) {
	if fieldErrors == nil {
		fieldErrors = make(map[string][]string)
	}

	val := params.Get(key)
	if val == "" {
		return time.Time{}, fieldErrors
	}

	ms, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		fieldErrors[key] = append(fieldErrors[key], fmt.Sprintf("Invalid field value for field %q.", key))
		return time.Time{}, fieldErrors
	}
	return time.UnixMilli(ms), fieldErrors
}
