package scenario

import (
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/mitchellh/mapstructure"
)

type customDef struct {
	Name        string        `mapstructure:"name"`
	Description string        `mapstructure:"description"`
	Phases      []customPhase `mapstructure:"phases"`
}

// customPhase accepts both "sources" and the legacy "generators" key.
type customPhase struct {
	Name       string        `mapstructure:"name"`
	Sources    []string      `mapstructure:"sources"`
	Generators []string      `mapstructure:"generators"`
	Duration   time.Duration `mapstructure:"duration"`
}

var durationType = reflect.TypeOf(time.Duration(0))

// minutesHook reads bare numbers as minutes, the unit scenario authors use.
func minutesHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if to != durationType {
		return data, nil
	}
	switch v := data.(type) {
	case int:
		return time.Duration(v) * time.Minute, nil
	case int64:
		return time.Duration(v) * time.Minute, nil
	case float64:
		return time.Duration(v * float64(time.Minute)), nil
	}
	return data, nil
}

// DecodeCustom converts a user-supplied definition into a Template.
// The returned template has no id.
func DecodeCustom(def map[string]any) (Template, error) {
	var raw customDef
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      &raw,
		ErrorUnused: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			minutesHook,
		),
	})
	if err != nil {
		return Template{}, err
	}
	if err := dec.Decode(def); err != nil {
		return Template{}, fmt.Errorf("%w: %v", ErrInvalidTemplate, err)
	}
	if raw.Name == "" {
		return Template{}, fmt.Errorf("%w: name is required", ErrInvalidTemplate)
	}

	t := Template{Name: raw.Name, Description: raw.Description}
	for _, p := range raw.Phases {
		sources := p.Sources
		if len(sources) == 0 {
			sources = p.Generators
		}
		t.Phases = append(t.Phases, Phase{Name: p.Name, Sources: sources, Duration: p.Duration})
	}
	if err := t.Validate(); err != nil {
		return Template{}, err
	}
	return t, nil
}

func isDuplicate(err error) bool {
	return errors.Is(err, ErrDuplicateScenario)
}
