// Package vsscatalogue loads VSS signal catalogue files — a YAML tree
// keyed by dot-separated signal path — and registers every entry into a
// broker registry before the server starts accepting connections,
// using gopkg.in/yaml.v3 for decoding.
package vsscatalogue

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/sdv-broker/databroker/internal/broker"
)

// signalDef is the on-disk shape of one catalogue entry. Type and
// Datatype mirror the VSS vspec vocabulary (branch/sensor/actuator/
// attribute, and the scalar/array datatype names).
type signalDef struct {
	Type        string        `yaml:"type"`
	Datatype    string        `yaml:"datatype"`
	ChangeType  string        `yaml:"changetype"`
	Description string        `yaml:"description"`
	Unit        string        `yaml:"unit"`
	Min         interface{}   `yaml:"min"`
	Max         interface{}   `yaml:"max"`
	Allowed     []interface{} `yaml:"allowed"`
}

// Loader registers parsed catalogue entries into a registry. It is an
// interface (rather than a concrete *broker.Registry) so tests can supply
// a recording fake without constructing a real registry.
type Loader interface {
	Add(path string, dataType broker.Kind, entryType broker.EntryType, changeType broker.ChangeType, description, unit string, min, max, allowed *broker.Value) broker.ID
}

// Load reads and parses every file in paths, in the order given, and
// registers each signal definition into reg. The entries of one file are
// registered in no particular order. A path may be YAML or JSON — both
// decode through gopkg.in/yaml.v3, which accepts JSON as a YAML subset.
func Load(reg Loader, paths []string) (int, error) {
	count := 0
	for _, p := range paths {
		n, err := loadFile(reg, p)
		if err != nil {
			return count, fmt.Errorf("loading catalogue %s: %w", p, err)
		}
		count += n
	}
	return count, nil
}

func loadFile(reg Loader, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	var raw map[string]signalDef
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return 0, fmt.Errorf("parsing YAML: %w", err)
	}

	count := 0
	for vssPath, def := range raw {
		if def.Type == "branch" {
			continue
		}
		if err := registerSignal(reg, vssPath, def); err != nil {
			return count, fmt.Errorf("signal %s: %w", vssPath, err)
		}
		count++
	}
	return count, nil
}

func registerSignal(reg Loader, path string, def signalDef) error {
	kind, err := parseDatatype(def.Datatype)
	if err != nil {
		return err
	}
	entryType, err := parseEntryType(def.Type)
	if err != nil {
		return err
	}
	changeType := parseChangeType(def.ChangeType, entryType)

	var min, max, allowed *broker.Value
	if def.Min != nil {
		v, err := scalarFromYAML(kind, def.Min)
		if err != nil {
			return fmt.Errorf("min: %w", err)
		}
		min = &v
	}
	if def.Max != nil {
		v, err := scalarFromYAML(kind, def.Max)
		if err != nil {
			return fmt.Errorf("max: %w", err)
		}
		max = &v
	}
	if len(def.Allowed) > 0 {
		v, err := arrayFromYAML(kind, def.Allowed)
		if err != nil {
			return fmt.Errorf("allowed: %w", err)
		}
		allowed = &v
	}

	reg.Add(path, kind, entryType, changeType, def.Description, def.Unit, min, max, allowed)
	return nil
}

func parseEntryType(t string) (broker.EntryType, error) {
	switch t {
	case "sensor":
		return broker.EntryTypeSensor, nil
	case "actuator":
		return broker.EntryTypeActuator, nil
	case "attribute":
		return broker.EntryTypeAttribute, nil
	default:
		return 0, fmt.Errorf("unknown entry type %q", t)
	}
}

// parseChangeType defaults attributes to static and sensors/actuators to
// onchange when the catalogue omits changetype, matching the common case
// in real vspec trees where only continuously-varying signals (e.g.
// Vehicle.Speed) declare it explicitly.
func parseChangeType(ct string, entryType broker.EntryType) broker.ChangeType {
	switch ct {
	case "continuous":
		return broker.ChangeTypeContinuous
	case "onchange":
		return broker.ChangeTypeOnChange
	case "static":
		return broker.ChangeTypeStatic
	default:
		if entryType == broker.EntryTypeAttribute {
			return broker.ChangeTypeStatic
		}
		return broker.ChangeTypeOnChange
	}
}

func parseDatatype(dt string) (broker.Kind, error) {
	scalar := map[string]broker.Kind{
		"boolean": broker.KindBool,
		"string":  broker.KindString,
		"int8":    broker.KindInt8,
		"int16":   broker.KindInt16,
		"int32":   broker.KindInt32,
		"int64":   broker.KindInt64,
		"uint8":   broker.KindUint8,
		"uint16":  broker.KindUint16,
		"uint32":  broker.KindUint32,
		"uint64":  broker.KindUint64,
		"float":   broker.KindFloat,
		"double":  broker.KindDouble,
	}
	if k, ok := scalar[dt]; ok {
		return k, nil
	}
	if len(dt) > 2 && dt[len(dt)-2:] == "[]" {
		if k, ok := scalar[dt[:len(dt)-2]]; ok {
			return k.ArrayOf(), nil
		}
	}
	return 0, fmt.Errorf("unknown datatype %q", dt)
}

func scalarFromYAML(kind broker.Kind, raw interface{}) (broker.Value, error) {
	switch kind {
	case broker.KindBool:
		b, ok := raw.(bool)
		if !ok {
			return broker.Value{}, fmt.Errorf("expected bool, got %T", raw)
		}
		return broker.BoolValue(b), nil
	case broker.KindString:
		s, ok := raw.(string)
		if !ok {
			return broker.Value{}, fmt.Errorf("expected string, got %T", raw)
		}
		return broker.StringValue(s), nil
	case broker.KindFloat, broker.KindDouble:
		f, err := toFloat64(raw)
		if err != nil {
			return broker.Value{}, err
		}
		if kind == broker.KindFloat {
			return broker.FloatValue(float32(f)), nil
		}
		return broker.DoubleValue(f), nil
	default:
		n, err := toInt64(raw)
		if err != nil {
			return broker.Value{}, err
		}
		return intValueOfKind(kind, n), nil
	}
}

func arrayFromYAML(kind broker.Kind, raw []interface{}) (broker.Value, error) {
	scalar := kind
	if scalar.IsArray() {
		scalar = scalar.ScalarOf()
	}
	switch scalar {
	case broker.KindBool:
		out := make([]bool, len(raw))
		for i, r := range raw {
			b, ok := r.(bool)
			if !ok {
				return broker.Value{}, fmt.Errorf("expected bool, got %T", r)
			}
			out[i] = b
		}
		return broker.BoolArrayValue(out), nil
	case broker.KindString:
		out := make([]string, len(raw))
		for i, r := range raw {
			s, ok := r.(string)
			if !ok {
				return broker.Value{}, fmt.Errorf("expected string, got %T", r)
			}
			out[i] = s
		}
		return broker.StringArrayValue(out), nil
	case broker.KindFloat:
		out := make([]float32, len(raw))
		for i, r := range raw {
			f, err := toFloat64(r)
			if err != nil {
				return broker.Value{}, err
			}
			out[i] = float32(f)
		}
		return broker.FloatArrayValue(out), nil
	case broker.KindDouble:
		out := make([]float64, len(raw))
		for i, r := range raw {
			f, err := toFloat64(r)
			if err != nil {
				return broker.Value{}, err
			}
			out[i] = f
		}
		return broker.DoubleArrayValue(out), nil
	default:
		nums := make([]int64, len(raw))
		for i, r := range raw {
			n, err := toInt64(r)
			if err != nil {
				return broker.Value{}, err
			}
			nums[i] = n
		}
		return intArrayValueOfKind(scalar, nums), nil
	}
}

func toFloat64(raw interface{}) (float64, error) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("expected number, got %T", raw)
	}
}

func toInt64(raw interface{}) (int64, error) {
	switch v := raw.(type) {
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case uint64:
		return int64(v), nil
	case float64:
		return int64(v), nil
	default:
		return 0, fmt.Errorf("expected integer, got %T", raw)
	}
}

func intValueOfKind(kind broker.Kind, n int64) broker.Value {
	switch kind {
	case broker.KindInt8:
		return broker.Int8Value(int8(n))
	case broker.KindInt16:
		return broker.Int16Value(int16(n))
	case broker.KindInt32:
		return broker.Int32Value(int32(n))
	case broker.KindInt64:
		return broker.Int64Value(n)
	case broker.KindUint8:
		return broker.Uint8Value(uint8(n))
	case broker.KindUint16:
		return broker.Uint16Value(uint16(n))
	case broker.KindUint32:
		return broker.Uint32Value(uint32(n))
	case broker.KindUint64:
		return broker.Uint64Value(uint64(n))
	default:
		return broker.Int64Value(n)
	}
}

func intArrayValueOfKind(kind broker.Kind, nums []int64) broker.Value {
	switch kind {
	case broker.KindInt8:
		out := make([]int8, len(nums))
		for i, n := range nums {
			out[i] = int8(n)
		}
		return broker.Int8ArrayValue(out)
	case broker.KindInt16:
		out := make([]int16, len(nums))
		for i, n := range nums {
			out[i] = int16(n)
		}
		return broker.Int16ArrayValue(out)
	case broker.KindInt32:
		out := make([]int32, len(nums))
		for i, n := range nums {
			out[i] = int32(n)
		}
		return broker.Int32ArrayValue(out)
	case broker.KindInt64:
		return broker.Int64ArrayValue(nums)
	case broker.KindUint8:
		out := make([]uint8, len(nums))
		for i, n := range nums {
			out[i] = uint8(n)
		}
		return broker.Uint8ArrayValue(out)
	case broker.KindUint16:
		out := make([]uint16, len(nums))
		for i, n := range nums {
			out[i] = uint16(n)
		}
		return broker.Uint16ArrayValue(out)
	case broker.KindUint32:
		out := make([]uint32, len(nums))
		for i, n := range nums {
			out[i] = uint32(n)
		}
		return broker.Uint32ArrayValue(out)
	case broker.KindUint64:
		out := make([]uint64, len(nums))
		for i, n := range nums {
			out[i] = uint64(n)
		}
		return broker.Uint64ArrayValue(out)
	default:
		return broker.Int64ArrayValue(nums)
	}
}
