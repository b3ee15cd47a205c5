package appstats

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"
)

// Option names, as accepted by ParseOptions.
const (
	OptRecordFraction = "RECORD_FRACTION"
	OptKeyPrefix      = "KEY_PREFIX"
	OptKeyNamespace   = "KEY_NAMESPACE"
	OptKeyDistance    = "KEY_DISTANCE"
	OptKeyModulus     = "KEY_MODULUS"
	OptRecordTTL      = "RECORD_TTL"
	OptMaxCalls       = "MAX_CALLS"
)

// Options configures a Library.
type Options struct {
	// RecordFraction is the share of requests recorded, in [0, 1].
	RecordFraction float64
	// KeyPrefix is prepended to every store key.
	KeyPrefix string
	// KeyNamespace is passed to the cache client on every call.
	KeyNamespace string
	// KeyDistance is the width of one key slot in milliseconds.
	KeyDistance int64
	// KeyModulus is the number of key slots.
	KeyModulus int64
	// RecordTTL is the store expiry; zero keeps records until evicted.
	RecordTTL time.Duration
	// MaxCalls caps the call traces kept per request.
	MaxCalls int
	// Extra holds options this package does not know, untouched.
	Extra map[string]string
}

// DefaultOptions returns the stock appstats settings.
func DefaultOptions() Options {
	return Options{
		RecordFraction: 1.0,
		KeyPrefix:      "__appstats__",
		KeyNamespace:   "__appstats__",
		KeyDistance:    100,
		KeyModulus:     1000,
		MaxCalls:       1000,
		Extra:          map[string]string{},
	}
}

// ParseOptions applies raw (name -> value) on top of DefaultOptions.
// Names are case-insensitive.
func ParseOptions(raw map[string]string) (Options, error) {
	opts := DefaultOptions()

	for name, value := range raw {
		key := strings.ToUpper(strings.TrimSpace(name))
		value = strings.TrimSpace(value)

		var err error
		switch key {
		case OptRecordFraction:
			opts.RecordFraction, err = strconv.ParseFloat(value, 64)
			if err == nil && (opts.RecordFraction < 0 || opts.RecordFraction > 1) {
				err = fmt.Errorf("must be within [0, 1]")
			}
		case OptKeyPrefix:
			opts.KeyPrefix = value
		case OptKeyNamespace:
			opts.KeyNamespace = value
		case OptKeyDistance:
			opts.KeyDistance, err = parsePositive(value)
		case OptKeyModulus:
			opts.KeyModulus, err = parsePositive(value)
		case OptRecordTTL:
			opts.RecordTTL, err = parseTTL(value)
		case OptMaxCalls:
			var n int64
			n, err = parsePositive(value)
			opts.MaxCalls = int(n)
		default:
			opts.Extra[key] = value
		}
		if err != nil {
			return Options{}, fmt.Errorf("appstats option %s=%q: %w", key, value, err)
		}
	}

	return opts, nil
}

// LoadOptionsFile reads a flat option map from a .yaml/.yml or .toml file.
// Values of any scalar type are rendered as strings for ParseOptions.
func LoadOptionsFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read appstats options: %w", err)
	}

	var decoded map[string]interface{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &decoded)
	case ".toml":
		err = toml.Unmarshal(data, &decoded)
	default:
		return nil, fmt.Errorf("unsupported appstats options file %q", path)
	}
	if err != nil {
		return nil, fmt.Errorf("parse appstats options %s: %w", path, err)
	}

	out := make(map[string]string, len(decoded))
	for k, v := range decoded {
		out[k] = fmt.Sprint(v)
	}
	return out, nil
}

// MergeOptions overlays later maps onto earlier ones.
func MergeOptions(layers ...map[string]string) map[string]string {
	out := make(map[string]string)
	for _, layer := range layers {
		for k, v := range layer {
			out[strings.ToUpper(k)] = v
		}
	}
	return out
}

func parsePositive(value string) (int64, error) {
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("must be positive")
	}
	return n, nil
}

// parseTTL accepts a Go duration ("90s") or plain seconds ("90").
func parseTTL(value string) (time.Duration, error) {
	if secs, err := strconv.ParseInt(value, 10, 64); err == nil {
		if secs < 0 {
			return 0, fmt.Errorf("must not be negative")
		}
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("must not be negative")
	}
	return d, nil
}
