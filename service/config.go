package service

import (
	"io/ioutil"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

// jsonConfig is a Config backed by a parsed JSON document: a flat map of
// top-level sections, each re-marshaled and unmarshaled into the caller's
// struct on demand. This is the teacher's previously-unwired json-iterator
// dependency put to work as the container's configuration source.
type jsonConfig struct {
	raw map[string]jsoniter.RawMessage
}

// LoadConfig reads path as a JSON object whose top-level keys are service
// names (matching container.Init's cfg.Get(e.name) lookup).
func LoadConfig(path string) (Config, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}

	var raw map[string]jsoniter.RawMessage
	if err := jsoniter.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, "parse config")
	}

	return &jsonConfig{raw: raw}, nil
}

func (c *jsonConfig) Get(name string) Config {
	msg, ok := c.raw[name]
	if !ok {
		return nil
	}

	var section map[string]jsoniter.RawMessage
	if err := jsoniter.Unmarshal(msg, &section); err != nil {
		// Not an object (e.g. a scalar section): wrap it so Unmarshal can
		// still decode the raw bytes directly.
		return &jsonConfig{raw: map[string]jsoniter.RawMessage{"": msg}}
	}

	return &jsonConfig{raw: section}
}

func (c *jsonConfig) Unmarshal(out interface{}) error {
	if msg, ok := c.raw[""]; ok && len(c.raw) == 1 {
		return jsoniter.Unmarshal(msg, out)
	}

	merged, err := jsoniter.Marshal(c.raw)
	if err != nil {
		return errors.Wrap(err, "remarshal config section")
	}
	return jsoniter.Unmarshal(merged, out)
}
