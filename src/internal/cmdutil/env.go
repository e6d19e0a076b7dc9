package cmdutil

import (
	"context"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/vizierdb/vizier/src/internal/errors"
	"gopkg.in/yaml.v3"
)

// Decoder decodes a set of configuration keys and values.
type Decoder interface {
	Decode() (map[string]string, error)
}

// Populate populates a struct with values named by its `env` tags.
//
// The environment has precedence over the decoders, earlier decoders have precedence over later
// decoders, and tag defaults come last.  Tags take the form KEY, KEY,required or
// KEY,default=VALUE.
func Populate(object interface{}, decoders ...Decoder) error {
	decoded, err := decodeAll(decoders)
	if err != nil {
		return err
	}
	return populate(reflect.ValueOf(object), func(key, def string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		if v := decoded[key]; v != "" {
			return v
		}
		return def
	}, false)
}

// PopulateDefaults sets every tagged field to its default value, ignoring the environment.
// Tests use it to get a baseline configuration.
func PopulateDefaults(object interface{}) error {
	return populate(reflect.ValueOf(object), func(_, def string) string { return def }, false)
}

// Main populates appEnv and runs do, exiting with status 1 if either fails.
func Main[T any](ctx context.Context, do func(context.Context, T) error, appEnv T, decoders ...Decoder) {
	if err := Populate(appEnv, decoders...); err != nil {
		ErrorAndExit("%v", err)
	}
	if err := do(ctx, appEnv); err != nil {
		ErrorAndExit("%v", err)
	}
	os.Exit(0)
}

const (
	cannotParseErr              = "cannot parse"
	envKeyNotSetWhenRequiredErr = "env key not set when required"
	expectedPointerErr          = "expected pointer"
	expectedStructErr           = "expected struct"
	fieldTypeNotAllowedErr      = "field type not allowed"
	invalidTagErr               = "invalid tag, must be KEY,{required},{default=DEFAULT_VALUE}"
)

var durationType = reflect.TypeOf(time.Duration(0))

func populate(v reflect.Value, lookup func(key, def string) string, recursive bool) error {
	if v.Kind() == reflect.Ptr {
		if v.IsNil() {
			if !v.CanSet() {
				return errors.Errorf("%s: %v", expectedPointerErr, v.Type())
			}
			v.Set(reflect.New(v.Type().Elem()))
		}
		v = v.Elem()
	} else if !recursive {
		return errors.Errorf("%s: %v", expectedPointerErr, v.Type())
	}
	if v.Kind() != reflect.Struct {
		return errors.Errorf("%s: %v", expectedStructErr, v.Type())
	}
	for i := 0; i < v.NumField(); i++ {
		field := v.Type().Field(i)
		tag, err := parseEnvTag(field)
		if err != nil {
			return err
		}
		if tag == nil {
			if isStructish(field.Type) && field.IsExported() {
				if err := populate(v.Field(i), lookup, true); err != nil {
					return err
				}
			}
			continue
		}
		value := lookup(tag.key, tag.defaultValue)
		if value == "" {
			if tag.required {
				return errors.Errorf("%s: %s %v", envKeyNotSetWhenRequiredErr, tag.key, v.Type())
			}
			continue
		}
		if err := setField(v.Field(i), value); err != nil {
			return errors.Wrapf(err, "%s %s", cannotParseErr, tag.key)
		}
	}
	return nil
}

func isStructish(t reflect.Type) bool {
	return t.Kind() == reflect.Struct || (t.Kind() == reflect.Ptr && t.Elem().Kind() == reflect.Struct)
}

func setField(f reflect.Value, value string) error {
	if f.Type() == durationType {
		d, err := time.ParseDuration(value)
		if err != nil {
			return errors.EnsureStack(err)
		}
		f.SetInt(int64(d))
		return nil
	}
	switch f.Kind() {
	case reflect.String:
		f.SetString(value)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return errors.EnsureStack(err)
		}
		f.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(value, 10, f.Type().Bits())
		if err != nil {
			return errors.EnsureStack(err)
		}
		f.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(value, 10, f.Type().Bits())
		if err != nil {
			return errors.EnsureStack(err)
		}
		f.SetUint(n)
	case reflect.Float32, reflect.Float64:
		n, err := strconv.ParseFloat(value, f.Type().Bits())
		if err != nil {
			return errors.EnsureStack(err)
		}
		f.SetFloat(n)
	case reflect.Slice:
		if f.Type().Elem().Kind() != reflect.String {
			return errors.Errorf("%s: %v", fieldTypeNotAllowedErr, f.Type())
		}
		var parts []string
		for _, p := range strings.Split(value, ",") {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}
		f.Set(reflect.ValueOf(parts))
	default:
		return errors.Errorf("%s: %v", fieldTypeNotAllowedErr, f.Kind())
	}
	return nil
}

type envTag struct {
	key          string
	required     bool
	defaultValue string
}

func parseEnvTag(field reflect.StructField) (*envTag, error) {
	tag := field.Tag.Get("env")
	if tag == "" {
		return nil, nil
	}
	key, rest, found := strings.Cut(tag, ",")
	result := &envTag{key: key}
	if !found {
		return result, nil
	}
	rest = strings.TrimSpace(rest)
	switch {
	case rest == "required":
		result.required = true
	case strings.HasPrefix(rest, "default="):
		result.defaultValue = strings.TrimPrefix(rest, "default=")
	default:
		return nil, errors.Errorf("%s: %s", invalidTagErr, tag)
	}
	return result, nil
}

func decodeAll(decoders []Decoder) (map[string]string, error) {
	env := make(map[string]string)
	for _, decoder := range decoders {
		sub, err := decoder.Decode()
		if err != nil {
			return nil, errors.EnsureStack(err)
		}
		for k, v := range sub {
			if _, ok := env[k]; !ok && v != "" {
				env[k] = v
			}
		}
	}
	return env, nil
}

// YAMLDecoder decodes a flat YAML document of KEY: value pairs.
type YAMLDecoder struct {
	Data []byte
}

// Decode implements Decoder.
func (d YAMLDecoder) Decode() (map[string]string, error) {
	raw := make(map[string]interface{})
	if err := yaml.Unmarshal(d.Data, &raw); err != nil {
		return nil, errors.Wrap(err, "decode yaml config")
	}
	result := make(map[string]string, len(raw))
	for k, v := range raw {
		switch x := v.(type) {
		case nil:
		case []interface{}:
			var parts []string
			for _, p := range x {
				parts = append(parts, strings.TrimSpace(yamlScalar(p)))
			}
			result[k] = strings.Join(parts, ",")
		default:
			result[k] = yamlScalar(x)
		}
	}
	return result, nil
}

func yamlScalar(v interface{}) string {
	switch x := v.(type) {
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case int:
		return strconv.Itoa(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		out, _ := yaml.Marshal(x)
		return strings.TrimSpace(string(out))
	}
}

// YAMLFileDecoder returns a decoder for the YAML file at path.  A missing file decodes to
// nothing.
func YAMLFileDecoder(path string) Decoder {
	return decoderFunc(func() (map[string]string, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, nil
			}
			return nil, errors.Wrapf(err, "read config file %s", path)
		}
		return YAMLDecoder{Data: data}.Decode()
	})
}

type decoderFunc func() (map[string]string, error)

func (f decoderFunc) Decode() (map[string]string, error) { return f() }
