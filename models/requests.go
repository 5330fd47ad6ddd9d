package models

import (
	// Go Internal Packages
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// CommandBody is a gateway request body after its nested blocks have
// been merged over the top level fields. Nested values win on conflict.
type CommandBody struct {
	Fields map[string]any
}

// ParseCommandBody decodes a request body that carries its fields
// either at the top level or nested under the command name, and within
// that under transaction/params blocks. An empty body is a valid empty
// request.
func ParseCommandBody(r io.Reader, command string) (*CommandBody, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	fields := map[string]any{}
	if err := dec.Decode(&fields); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("body is not a JSON object: %w", err)
	}

	merged := make(map[string]any, len(fields))
	for k, v := range fields {
		merged[k] = v
	}
	for _, key := range nestedKeys(command) {
		flatten(merged, key)
	}
	// POS clients wrap the fields the way the wire envelope does; the
	// lodging block alone stays an object.
	flatten(merged, "transaction")
	flatten(merged, "params")
	return &CommandBody{Fields: merged}, nil
}

// flatten merges the object under key into fields and drops the key.
func flatten(fields map[string]any, key string) {
	nested, ok := fields[key].(map[string]any)
	if !ok {
		return
	}
	delete(fields, key)
	for k, v := range nested {
		fields[k] = v
	}
}

// nestedKeys lists the body keys a command's nested block may sit
// under: the exact command name, its lower camel form and its all
// lower form.
func nestedKeys(command string) []string {
	if command == "" {
		return nil
	}
	keys := []string{command}
	if camel := strings.ToLower(command[:1]) + command[1:]; camel != command {
		keys = append(keys, camel)
	}
	if lower := strings.ToLower(command); lower != keys[len(keys)-1] && lower != command {
		keys = append(keys, lower)
	}
	return keys
}

// Has reports whether the body carries a non-nil value for key.
func (b *CommandBody) Has(key string) bool {
	v, ok := b.Fields[key]
	return ok && v != nil
}

// String returns the field as a trimmed string, rendering numbers and
// booleans the way the terminal protocol expects.
func (b *CommandBody) String(key string) string {
	v, ok := b.Fields[key]
	if !ok || v == nil {
		return ""
	}
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case json.Number:
		return s.String()
	case bool:
		if s {
			return "1"
		}
		return "0"
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	}
	return fmt.Sprintf("%v", v)
}

// Amount returns the canonical two decimal form of an amount field.
// present is false when the field is absent or blank.
func (b *CommandBody) Amount(key string) (value string, present bool, err error) {
	v, ok := b.Fields[key]
	if !ok || v == nil {
		return "", false, nil
	}
	if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
		return "", false, nil
	}
	norm, err := NormalizeAmount(v)
	if err != nil {
		return "", true, fmt.Errorf("%s: %w", key, err)
	}
	return norm, true, nil
}

// Flag normalizes 0/1 style fields sent as bool, number or string.
// Absent fields return the empty string so defaults can apply.
func (b *CommandBody) Flag(key string) string {
	v, ok := b.Fields[key]
	if !ok || v == nil {
		return ""
	}
	switch f := v.(type) {
	case bool:
		if f {
			return "1"
		}
		return "0"
	case json.Number:
		if f.String() == "0" {
			return "0"
		}
		return "1"
	case string:
		s := strings.TrimSpace(f)
		if s == "" {
			return ""
		}
		switch strings.ToLower(s) {
		case "1", "true", "y", "yes":
			return "1"
		}
		return "0"
	}
	return ""
}

// Port returns an integer port field sent as number or string.
func (b *CommandBody) Port(key string) (int, bool, error) {
	v, ok := b.Fields[key]
	if !ok || v == nil {
		return 0, false, nil
	}
	switch p := v.(type) {
	case json.Number:
		n, err := strconv.Atoi(p.String())
		if err != nil {
			return 0, true, fmt.Errorf("%s is not a port", key)
		}
		return n, true, nil
	case string:
		s := strings.TrimSpace(p)
		if s == "" {
			return 0, false, nil
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0, true, fmt.Errorf("%s is not a port", key)
		}
		return n, true, nil
	case float64:
		return int(p), true, nil
	}
	return 0, true, fmt.Errorf("%s is not a port", key)
}

// Object returns a nested object field, such as a lodging block.
func (b *CommandBody) Object(key string) (map[string]any, bool) {
	obj, ok := b.Fields[key].(map[string]any)
	return obj, ok
}

// LodgingFromObject builds a lodging block from a request object,
// normalizing its amount fields.
func LodgingFromObject(obj map[string]any) (*LodgingInfo, error) {
	body := &CommandBody{Fields: obj}
	l := &LodgingInfo{
		FolioNumber:       body.String("folioNumber"),
		StayDuration:      body.String("stayDuration"),
		CheckInDate:       body.String("checkInDate"),
		CheckOutDate:      body.String("checkOutDate"),
		PreferredCustomer: body.Flag("preferredCustomer"),
	}
	for _, f := range []struct {
		key string
		dst *string
	}{
		{"dailyRate", &l.DailyRate},
		{"extraChargeTotal", &l.ExtraChargeTotal},
	} {
		val, present, err := body.Amount(f.key)
		if err != nil {
			return nil, err
		}
		if present {
			*f.dst = val
		}
	}
	return l, nil
}
