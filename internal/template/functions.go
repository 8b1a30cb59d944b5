package template

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

type function func(now time.Time, args string) (string, error)

var funcRegistry = map[string]function{
	"uuid":          fnUUID,
	"timestamp":     fnTimestamp,
	"timestamp_ms":  fnTimestampMs,
	"random":        fnRandom,
	"random_string": fnRandomString,
	"random_ip":     fnRandomIP,
	"pick":          fnPick,
	"date":          fnDate,
}

// evalFunction evaluates a built-in function call such as random(1,100).
// The bool is false when expr is not a known function call.
func evalFunction(expr string, now time.Time) (string, bool, error) {
	parenIdx := strings.Index(expr, "(")
	if parenIdx == -1 || !strings.HasSuffix(expr, ")") {
		return "", false, nil
	}

	funcName := expr[:parenIdx]
	args := expr[parenIdx+1 : len(expr)-1]

	fn, ok := funcRegistry[funcName]
	if !ok {
		return "", false, nil
	}

	result, err := fn(now, args)
	if err != nil {
		return "", true, fmt.Errorf("function %s: %w", funcName, err)
	}
	return result, true, nil
}

func fnUUID(_ time.Time, args string) (string, error) {
	if args != "" {
		return "", fmt.Errorf("uuid() takes no arguments")
	}
	return uuid.NewString(), nil
}

// fnTimestamp returns the Unix timestamp in seconds.
func fnTimestamp(now time.Time, args string) (string, error) {
	if args != "" {
		return "", fmt.Errorf("timestamp() takes no arguments")
	}
	return strconv.FormatInt(now.Unix(), 10), nil
}

func fnTimestampMs(now time.Time, args string) (string, error) {
	if args != "" {
		return "", fmt.Errorf("timestamp_ms() takes no arguments")
	}
	return strconv.FormatInt(now.UnixMilli(), 10), nil
}

// fnRandom generates a random integer between min and max (inclusive).
// Usage: random(min,max)
func fnRandom(_ time.Time, args string) (string, error) {
	parts := strings.Split(args, ",")
	if len(parts) != 2 {
		return "", fmt.Errorf("random(min,max) requires exactly 2 arguments")
	}

	min, err := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
	if err != nil {
		return "", fmt.Errorf("invalid min value: %w", err)
	}
	max, err := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
	if err != nil {
		return "", fmt.Errorf("invalid max value: %w", err)
	}
	if min > max {
		return "", fmt.Errorf("min (%d) must be <= max (%d)", min, max)
	}

	n, err := randInt(max - min + 1)
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(min+n, 10), nil
}

// fnRandomString generates a random alphanumeric string of the given length.
func fnRandomString(_ time.Time, args string) (string, error) {
	length, err := strconv.Atoi(strings.TrimSpace(args))
	if err != nil {
		return "", fmt.Errorf("invalid length: %w", err)
	}
	if length <= 0 {
		return "", fmt.Errorf("length must be positive")
	}
	if length > 1000 {
		return "", fmt.Errorf("length must be <= 1000")
	}

	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	result := make([]byte, length)
	for i := range result {
		n, err := randInt(int64(len(charset)))
		if err != nil {
			return "", err
		}
		result[i] = charset[n]
	}
	return string(result), nil
}

// fnRandomIP returns a random address in 10.0.0.0/8, or in the /24 given
// as a prefix: random_ip(192.168.1).
func fnRandomIP(_ time.Time, args string) (string, error) {
	prefix := strings.TrimSpace(args)
	octets := 3
	if prefix != "" {
		parts := strings.Split(prefix, ".")
		if len(parts) != 3 {
			return "", fmt.Errorf("prefix %q must have three octets", prefix)
		}
		for _, p := range parts {
			if v, err := strconv.Atoi(p); err != nil || v < 0 || v > 255 {
				return "", fmt.Errorf("invalid octet %q in prefix", p)
			}
		}
		octets = 1
	} else {
		prefix = "10"
	}

	var b strings.Builder
	b.WriteString(prefix)
	for i := 0; i < octets; i++ {
		n, err := randInt(256)
		if err != nil {
			return "", err
		}
		b.WriteByte('.')
		b.WriteString(strconv.FormatInt(n, 10))
	}
	return b.String(), nil
}

// fnPick returns one of its comma-separated arguments at random.
// Usage: pick(allowed,blocked,quarantined)
func fnPick(_ time.Time, args string) (string, error) {
	if strings.TrimSpace(args) == "" {
		return "", fmt.Errorf("pick() requires at least one argument")
	}
	choices := strings.Split(args, ",")
	n, err := randInt(int64(len(choices)))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(choices[n]), nil
}

// fnDate formats the current time using Go's reference layout.
// Common formats:
//   - date(2006-01-02) -> 2024-01-15
//   - date(15:04:05) -> 14:30:00
//   - date() -> RFC 3339
func fnDate(now time.Time, args string) (string, error) {
	format := strings.TrimSpace(args)
	if format == "" {
		format = time.RFC3339
	}
	return now.Format(format), nil
}

func randInt(n int64) (int64, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(n))
	if err != nil {
		return 0, err
	}
	return v.Int64(), nil
}
