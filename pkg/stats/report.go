package stats

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Report is one decoded usage submission.
type Report struct {
	ClientID    string
	Environment Environment
	ActivePorts []ActivePort
}

// Environment is the "os" block of a report.
type Environment struct {
	MacPortsVersion string `json:"macports_version"`
	OSVersion       string `json:"osx_version"`
	OSArch          string `json:"os_arch"`
	OSPlatform      string `json:"os_platform"`
	CXXStdlib       string `json:"cxx_stdlib"`
	BuildArch       string `json:"build_arch"`
	GCCVersion      string `json:"gcc_version"`
	Prefix          string `json:"prefix"`
	XcodeVersion    string `json:"xcode_version"`
}

// ActivePort is one entry of a report's "active_ports" list.
// An entry without a name is kept here and dropped by Expand.
type ActivePort struct {
	Name      string   `json:"name"`
	Version   string   `json:"version"`
	Requested flexBool `json:"requested"`
	Variants  Variants `json:"variants"`
}

// flexBool accepts JSON booleans as well as the "true"/"false" strings sent by
// the reporting client. Anything else decodes as false.
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case bool:
		*b = flexBool(t)
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "yes", "1":
			*b = true
		default:
			*b = false
		}
	case float64:
		*b = t != 0
	default:
		*b = false
	}
	return nil
}

// Variants is the set of enabled build variants, stored space-separated.
// Clients send either a string or a list of strings.
type Variants string

func (v *Variants) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*v = Variants(strings.Join(strings.Fields(s), " "))
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("variants must be a string or a list of strings")
	}
	parts := make([]string, 0, len(list))
	for _, item := range list {
		if item = strings.TrimSpace(item); item != "" {
			parts = append(parts, item)
		}
	}
	*v = Variants(strings.Join(parts, " "))
	return nil
}

// ParseReport decodes a raw submission body. It fails with ErrMalformedSubmission
// when the client id, the "os" object or the "active_ports" list is missing.
// Individual port entries that cannot be decoded are kept as nameless entries
// so that one bad entry does not reject its siblings.
func ParseReport(raw []byte) (*Report, error) {
	var envelope struct {
		ID          json.RawMessage `json:"id"`
		OS          json.RawMessage `json:"os"`
		ActivePorts json.RawMessage `json:"active_ports"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON: %v", ErrMalformedSubmission, err)
	}

	var clientID string
	if isNull(envelope.ID) || json.Unmarshal(envelope.ID, &clientID) != nil || strings.TrimSpace(clientID) == "" {
		return nil, fmt.Errorf("%w: missing client id", ErrMalformedSubmission)
	}

	if isNull(envelope.OS) {
		return nil, fmt.Errorf("%w: missing os block", ErrMalformedSubmission)
	}
	var env Environment
	if err := json.Unmarshal(envelope.OS, &env); err != nil {
		return nil, fmt.Errorf("%w: invalid os block: %v", ErrMalformedSubmission, err)
	}

	if isNull(envelope.ActivePorts) {
		return nil, fmt.Errorf("%w: missing active_ports", ErrMalformedSubmission)
	}
	var entries []json.RawMessage
	if err := json.Unmarshal(envelope.ActivePorts, &entries); err != nil {
		return nil, fmt.Errorf("%w: active_ports must be a list: %v", ErrMalformedSubmission, err)
	}

	ports := make([]ActivePort, 0, len(entries))
	for _, entry := range entries {
		var port ActivePort
		if err := json.Unmarshal(entry, &port); err != nil {
			port = ActivePort{}
		}
		ports = append(ports, port)
	}

	return &Report{
		ClientID:    strings.TrimSpace(clientID),
		Environment: env,
		ActivePorts: ports,
	}, nil
}

func isNull(data json.RawMessage) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
