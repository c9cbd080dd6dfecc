// Package callbacks encodes and decodes inline button payloads as
// "<action>:<payload>" strings that router patterns match against.
package callbacks

import (
	"strconv"
	"strings"
)

// Sep separates the action from its payload.
const Sep = ":"

// Data builds the callback data for an action and optional payload parts.
func Data(action string, parts ...string) string {
	if len(parts) == 0 {
		return action
	}
	return action + Sep + strings.Join(parts, Sep)
}

// Normalize converts Telebot's "\f<unique>|<payload>" encoding into the
// "<unique>:<payload>" form. Other data is returned unchanged.
func Normalize(data string) string {
	if !strings.HasPrefix(data, "\f") {
		return data
	}
	unique, payload, ok := strings.Cut(strings.TrimPrefix(data, "\f"), "|")
	unique = strings.TrimSpace(unique)
	if !ok || payload == "" {
		return unique
	}
	return unique + Sep + payload
}

// Split returns the action and the payload (may be empty).
func Split(data string) (string, string) {
	action, payload, _ := strings.Cut(data, Sep)
	return action, payload
}

// Int64 parses the payload of data as int64.
func Int64(data string) (int64, error) {
	_, p := Split(data)
	return strconv.ParseInt(p, 10, 64)
}

// Parts splits the payload of data into parts using sep.
func Parts(data, sep string) ([]string, error) {
	_, p := Split(data)
	if p == "" {
		return nil, strconv.ErrSyntax
	}
	return strings.Split(p, sep), nil
}

// TwoInt64 parses a payload like "123|456" into two int64 values.
func TwoInt64(data, sep string) (int64, int64, error) {
	parts, err := Parts(data, sep)
	if err != nil {
		return 0, 0, err
	}
	if len(parts) != 2 {
		return 0, 0, strconv.ErrSyntax
	}
	a, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, 0, err
	}
	b, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, 0, err
	}
	return a, b, nil
}
