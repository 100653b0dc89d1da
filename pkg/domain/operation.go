package domain

import (
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
)

// Known operation names. Other names are forwarded to the executor untyped.
const (
	OpBlur         = "blur"
	OpColorCorrect = "color_correct"
	OpClip         = "clip"
	OpTile         = "tile"
)

// BlurParams configures a smoothing filter.
type BlurParams struct {
	Kernel string  `mapstructure:"kernel" validate:"oneof=average gaussian"`
	Radius int     `mapstructure:"radius" validate:"min=1,max=64"`
	Sigma  float64 `mapstructure:"sigma" validate:"gte=0"`
}

// ColorCorrectParams configures percentile clip normalization.
type ColorCorrectParams struct {
	ClipPercent float64 `mapstructure:"clip_percent" validate:"gte=0,lte=50"`
	Bandwise    bool    `mapstructure:"bandwise"`
}

// ClipParams configures square clipping with optional overlap.
type ClipParams struct {
	ClipSize int     `mapstructure:"clip_size" validate:"min=1"`
	Overlap  float64 `mapstructure:"overlap" validate:"gte=0,lt=1"`
}

// TileParams configures tiling of the image.
type TileParams struct {
	TileSize int `mapstructure:"tile_size" validate:"min=1"`
}

// Operation is a validated transform request.
type Operation struct {
	Name string

	// Params is the parameter record sent to the executor. For known operations
	// it is the normalized form of Typed, defaults included.
	Params map[string]any

	// Typed holds the decoded parameter record of a known operation, nil otherwise.
	Typed any
}

var paramsValidate = validator.New()

// defaults returns a fresh parameter record for a known operation.
func defaults(name string) (any, bool) {
	switch name {
	case OpBlur:
		return &BlurParams{Kernel: "average", Radius: 1}, true
	case OpColorCorrect:
		return &ColorCorrectParams{ClipPercent: 2}, true
	case OpClip:
		return &ClipParams{}, true
	case OpTile:
		return &TileParams{}, true
	}
	return nil, false
}

// ParseOperation validates a transform request. Known operations are decoded into
// their typed records; unknown ones must carry only primitive parameter values and
// are left for the executor to accept or reject.
func ParseOperation(name string, raw map[string]any) (Operation, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Operation{}, ErrMissingOperation
	}
	if raw == nil {
		raw = map[string]any{}
	}

	typed, known := defaults(name)
	if !known {
		if err := checkPrimitive(raw); err != nil {
			return Operation{}, err
		}
		return Operation{Name: name, Params: raw}, nil
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      typed,
		ErrorUnused: true,
		DecodeHook:  mapstructure.DecodeHookFuncType(wholeNumbers),
	})
	if err != nil {
		return Operation{}, err
	}
	if err := dec.Decode(raw); err != nil {
		return Operation{}, fmt.Errorf("%w: %s: %v", ErrInvalidParameters, name, err)
	}
	if err := paramsValidate.Struct(typed); err != nil {
		return Operation{}, fmt.Errorf("%w: %s: %v", ErrInvalidParameters, name, err)
	}

	params := map[string]any{}
	if err := mapstructure.Decode(typed, &params); err != nil {
		return Operation{}, fmt.Errorf("normalize %s parameters: %w", name, err)
	}
	return Operation{Name: name, Params: params, Typed: typed}, nil
}

func checkPrimitive(params map[string]any) error {
	for k, v := range params {
		switch val := v.(type) {
		case nil, string, bool, float64, float32, int, int64:
		case []any:
			for _, item := range val {
				switch item.(type) {
				case nil, string, bool, float64, float32, int, int64:
				default:
					return fmt.Errorf("%w: %q holds a nested value", ErrInvalidParameters, k)
				}
			}
		default:
			return fmt.Errorf("%w: %q must be a primitive value, got %T", ErrInvalidParameters, k, v)
		}
	}
	return nil
}

// wholeNumbers rejects fractional values bound for integer fields, which
// mapstructure would otherwise truncate.
func wholeNumbers(_ reflect.Type, to reflect.Type, data any) (any, error) {
	switch to.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
	default:
		return data, nil
	}
	var f float64
	switch v := data.(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	default:
		return data, nil
	}
	if f != math.Trunc(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("%v is not a whole number", data)
	}
	return data, nil
}
