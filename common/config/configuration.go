package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"gopkg.in/yaml.v3"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// DefaultConfiguration 基于嵌套 map 的配置实现
type DefaultConfiguration struct {
	data map[string]interface{}
}

func NewConfigurationFromMap(data map[string]interface{}) Configuration {
	if data == nil {
		data = make(map[string]interface{})
	}
	return &DefaultConfiguration{data: data}
}

func FromJSON(jsonStr string) (Configuration, error) {
	var data map[string]interface{}
	if err := jsonAPI.Unmarshal([]byte(jsonStr), &data); err != nil {
		return nil, err
	}
	return NewConfigurationFromMap(data), nil
}

// FromYAML parses a YAML document into the same map model used for JSON.
func FromYAML(yamlStr string) (Configuration, error) {
	var data map[string]interface{}
	if err := yaml.Unmarshal([]byte(yamlStr), &data); err != nil {
		return nil, err
	}
	if data == nil {
		return NewConfigurationFromMap(nil), nil
	}
	return NewConfigurationFromMap(normalize(data).(map[string]interface{})), nil
}

// normalize converts YAML-decoded nested values so that nested maps are always
// map[string]interface{}, which is what Get walks.
func normalize(value interface{}) interface{} {
	switch v := value.(type) {
	case map[string]interface{}:
		for k, item := range v {
			v[k] = normalize(item)
		}
		return v
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, item := range v {
			out[fmt.Sprintf("%v", k)] = normalize(item)
		}
		return out
	case []interface{}:
		for i, item := range v {
			v[i] = normalize(item)
		}
		return v
	default:
		return v
	}
}

// FromFile loads a JSON or YAML file; the format is chosen by extension.
func FromFile(filename string) (Configuration, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		return FromYAML(string(content))
	default:
		return FromJSON(string(content))
	}
}

// Get walks the dotted path. A path ending on a sub-tree returns the map.
func (c *DefaultConfiguration) Get(path string) interface{} {
	var node interface{} = c.data
	for _, key := range strings.Split(path, ".") {
		m, ok := node.(map[string]interface{})
		if !ok {
			return nil
		}
		if node, ok = m[key]; !ok {
			return nil
		}
	}
	return node
}

func (c *DefaultConfiguration) IsExists(path string) bool {
	return c.Get(path) != nil
}

func (c *DefaultConfiguration) GetString(path string) string {
	switch v := c.Get(path).(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}

func (c *DefaultConfiguration) GetStringWithDefault(path, defaultValue string) string {
	if value := c.GetString(path); value != "" {
		return value
	}
	return defaultValue
}

// toInt64 accepts the number types produced by the JSON and YAML decoders as
// well as numeric strings.
func toInt64(value interface{}) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		return int64(v), true
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		return i, err == nil
	}
	return 0, false
}

func (c *DefaultConfiguration) GetInt(path string) int {
	return int(c.GetLong(path))
}

func (c *DefaultConfiguration) GetIntWithDefault(path string, defaultValue int) int {
	return int(c.GetLongWithDefault(path, int64(defaultValue)))
}

func (c *DefaultConfiguration) GetLong(path string) int64 {
	i, _ := toInt64(c.Get(path))
	return i
}

// GetLongWithDefault returns defaultValue when path is unset or not a number.
func (c *DefaultConfiguration) GetLongWithDefault(path string, defaultValue int64) int64 {
	if i, ok := toInt64(c.Get(path)); ok {
		return i
	}
	return defaultValue
}

// GetDurationWithDefault accepts Go duration strings ("5s") or integer milliseconds.
func (c *DefaultConfiguration) GetDurationWithDefault(path string, defaultValue time.Duration) time.Duration {
	value := c.Get(path)
	if s, ok := value.(string); ok {
		if d, err := time.ParseDuration(s); err == nil {
			return d
		}
		return defaultValue
	}
	if ms, ok := toInt64(value); ok {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultValue
}

func (c *DefaultConfiguration) GetBool(path string) bool {
	return c.GetBoolWithDefault(path, false)
}

func (c *DefaultConfiguration) GetBoolWithDefault(path string, defaultValue bool) bool {
	switch v := c.Get(path).(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

func (c *DefaultConfiguration) GetConfiguration(path string) Configuration {
	sub, _ := c.Get(path).(map[string]interface{})
	return NewConfigurationFromMap(sub)
}
