package httputil

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
)

// ParsePathString extracts a string path parameter
func ParsePathString(r *http.Request, key string) (string, error) {
	str := mux.Vars(r)[key]
	if str == "" {
		return "", fmt.Errorf("missing path parameter: %s", key)
	}
	return str, nil
}

// QueryValue returns the trimmed query parameter, or defaultVal when absent or blank.
func QueryValue(r *http.Request, key, defaultVal string) string {
	val := strings.TrimSpace(r.URL.Query().Get(key))
	if val == "" {
		return defaultVal
	}
	return val
}

// QueryFlag reports whether key is set to a truthy value. Python-style
// "True" is accepted alongside strconv's forms.
func QueryFlag(r *http.Request, key string) bool {
	val, err := strconv.ParseBool(QueryValue(r, key, "false"))
	if err != nil {
		return strings.EqualFold(QueryValue(r, key, ""), "yes")
	}
	return val
}
