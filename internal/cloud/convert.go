package cloud

import (
	"fmt"
	"math"
	"strconv"

	"homehub/internal/feature"
)

// EncodeValue translates a local feature value into the wire value the
// cloud expects for its datapoint kind
func EncodeValue(kind string, v any) (any, error) {
	switch kind {
	case feature.KindSwitch:
		b, _ := feature.ToBool(v)
		return b, nil
	case feature.KindDimmer:
		n, ok := feature.ToFloat(v)
		if !ok {
			return nil, fmt.Errorf("dimmer value %v is not numeric", v)
		}
		// local percent, cloud scale 10..1000
		return int(math.Round(n * 10)), nil
	case feature.KindTemperature:
		n, ok := feature.ToFloat(v)
		if !ok {
			return nil, fmt.Errorf("temperature value %v is not numeric", v)
		}
		// cloud carries tenths of a degree
		return int(math.Round(n * 10)), nil
	case feature.KindColor:
		return EncodeColor(v)
	default:
		return v, nil
	}
}

// DecodeValue translates a cloud wire value into the local representation
func DecodeValue(kind string, v any) (any, error) {
	switch kind {
	case feature.KindSwitch:
		b, _ := feature.ToBool(v)
		return b, nil
	case feature.KindDimmer:
		n, ok := feature.ToFloat(v)
		if !ok {
			return nil, fmt.Errorf("dimmer value %v is not numeric", v)
		}
		return n / 10, nil
	case feature.KindTemperature:
		n, ok := feature.ToFloat(v)
		if !ok {
			return nil, fmt.Errorf("temperature value %v is not numeric", v)
		}
		return n / 10, nil
	case feature.KindColor:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("color value %v is not a string", v)
		}
		return DecodeColor(s)
	default:
		return v, nil
	}
}

// EncodeColor packs an RGB map into the cloud's 12-hex-digit HSV string:
// four digits each for hue 0..360, saturation 0..1000 and value 0..1000
func EncodeColor(v any) (string, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return "", fmt.Errorf("color value %v is not an object", v)
	}
	r, rok := feature.ToFloat(m["r"])
	g, gok := feature.ToFloat(m["g"])
	b, bok := feature.ToFloat(m["b"])
	if !rok || !gok || !bok {
		return "", fmt.Errorf("color value %v is missing channels", v)
	}
	h, s, val := rgbToHSV(r/255, g/255, b/255)
	return fmt.Sprintf("%04x%04x%04x",
		int(math.Round(h)),
		int(math.Round(s*1000)),
		int(math.Round(val*1000))), nil
}

// DecodeColor unpacks the cloud HSV hex string into an RGB map with
// integer 0..255 channels
func DecodeColor(packed string) (map[string]any, error) {
	if len(packed) != 12 {
		return nil, fmt.Errorf("color string %q is not 12 hex digits", packed)
	}
	h, err := strconv.ParseInt(packed[0:4], 16, 32)
	if err != nil {
		return nil, fmt.Errorf("parsing hue: %w", err)
	}
	s, err := strconv.ParseInt(packed[4:8], 16, 32)
	if err != nil {
		return nil, fmt.Errorf("parsing saturation: %w", err)
	}
	v, err := strconv.ParseInt(packed[8:12], 16, 32)
	if err != nil {
		return nil, fmt.Errorf("parsing brightness: %w", err)
	}
	r, g, b := hsvToRGB(float64(h), float64(s)/1000, float64(v)/1000)
	return map[string]any{
		"r": int(math.Round(r * 255)),
		"g": int(math.Round(g * 255)),
		"b": int(math.Round(b * 255)),
	}, nil
}

// rgbToHSV takes channels in 0..1 and returns hue in degrees 0..360 with
// saturation and value in 0..1
func rgbToHSV(r, g, b float64) (h, s, v float64) {
	max := math.Max(r, math.Max(g, b))
	min := math.Min(r, math.Min(g, b))
	v = max
	d := max - min
	if max > 0 {
		s = d / max
	}
	if d == 0 {
		return 0, s, v
	}
	switch max {
	case r:
		h = math.Mod((g-b)/d, 6)
	case g:
		h = (b-r)/d + 2
	default:
		h = (r-g)/d + 4
	}
	h *= 60
	if h < 0 {
		h += 360
	}
	return h, s, v
}

func hsvToRGB(h, s, v float64) (r, g, b float64) {
	c := v * s
	x := c * (1 - math.Abs(math.Mod(h/60, 2)-1))
	m := v - c
	switch {
	case h < 60:
		r, g, b = c, x, 0
	case h < 120:
		r, g, b = x, c, 0
	case h < 180:
		r, g, b = 0, c, x
	case h < 240:
		r, g, b = 0, x, c
	case h < 300:
		r, g, b = x, 0, c
	default:
		r, g, b = c, 0, x
	}
	return r + m, g + m, b + m
}
