// Package serde encodes CLI output as JSON or YAML.
//
// YAML output goes through JSON first: values are serialized with encoding/json, decoded into a
// generic interface{}, and that is written with gopkg.in/yaml.v3.  This keeps field names and
// timestamps identical in both formats.
package serde

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"

	"github.com/vizierdb/vizier/src/internal/errors"
	"gopkg.in/yaml.v3"
)

// Encoder writes values in one serialization format.
type Encoder interface {
	Encode(v interface{}) error
}

// EncoderOption configures an encoder.
type EncoderOption func(*options)

type options struct {
	indent int
}

// WithIndent sets the indentation width.
func WithIndent(n int) EncoderOption {
	return func(o *options) { o.indent = n }
}

// GetEncoder returns an encoder for format, "json" or "yaml", that writes to w.
func GetEncoder(format string, w io.Writer, opts ...EncoderOption) (Encoder, error) {
	o := &options{indent: 2}
	for _, opt := range opts {
		opt(o)
	}
	switch strings.ToLower(format) {
	case "", "json":
		e := json.NewEncoder(w)
		e.SetIndent("", strings.Repeat(" ", o.indent))
		return e, nil
	case "yaml":
		y := yaml.NewEncoder(w)
		y.SetIndent(o.indent)
		return &YAMLEncoder{e: y}, nil
	default:
		return nil, errors.Errorf("unrecognized output format %q, expected json or yaml", format)
	}
}

// YAMLEncoder is an Encoder for YAML.
type YAMLEncoder struct {
	e *yaml.Encoder
}

// EncodeYAML encodes v as YAML and returns the bytes.
func EncodeYAML(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	y := yaml.NewEncoder(&buf)
	y.SetIndent(2)
	if err := (&YAMLEncoder{e: y}).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Encode implements Encoder.
func (e *YAMLEncoder) Encode(v interface{}) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		return errors.Wrapf(err, "serialization error while canonicalizing output")
	}
	var holder interface{}
	if err := json.Unmarshal(buf.Bytes(), &holder); err != nil {
		return errors.Wrapf(err, "deserialization error while canonicalizing output")
	}
	if err := e.e.Encode(holder); err != nil {
		return errors.Wrapf(err, "serialization error while canonicalizing yaml")
	}
	return nil
}
