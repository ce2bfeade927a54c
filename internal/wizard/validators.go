package wizard

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Required rejects empty input with msg
func Required(msg string) Validator {
	return func(input string) (string, error) {
		if strings.TrimSpace(input) == "" {
			return "", errors.New(msg)
		}
		return strings.TrimSpace(input), nil
	}
}

// Prefix requires input to start with the literal prefix
func Prefix(prefix, msg string) Validator {
	return func(input string) (string, error) {
		input = strings.TrimSpace(input)
		if !strings.HasPrefix(input, prefix) || len(input) == len(prefix) {
			return "", errors.New(msg)
		}
		return input, nil
	}
}

// MaxLen rejects input longer than n characters
func MaxLen(n int, msg string) Validator {
	return func(input string) (string, error) {
		input = strings.TrimSpace(input)
		if input == "" || len([]rune(input)) > n {
			return "", errors.New(msg)
		}
		return input, nil
	}
}

// PositiveInt accepts whole numbers greater than zero
func PositiveInt(msg string) Validator {
	return func(input string) (string, error) {
		n, err := strconv.Atoi(strings.TrimSpace(input))
		if err != nil || n <= 0 {
			return "", errors.New(msg)
		}
		return strconv.Itoa(n), nil
	}
}

// Price accepts a non-negative decimal; a comma decimal separator is allowed
func Price(msg string) Validator {
	return func(input string) (string, error) {
		v, err := ParsePrice(input)
		if err != nil {
			return "", errors.New(msg)
		}
		return strconv.FormatFloat(v, 'f', 2, 64), nil
	}
}

// ParsePrice parses "49.90" or "49,90"
func ParsePrice(input string) (float64, error) {
	s := strings.ReplaceAll(strings.TrimSpace(input), ",", ".")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("price must be a finite number")
	}
	if v < 0 {
		return 0, fmt.Errorf("price must not be negative")
	}
	return v, nil
}

// Numeric accepts a decimal digit string such as a chat identifier
func Numeric(msg string) Validator {
	return func(input string) (string, error) {
		input = strings.TrimSpace(input)
		if _, err := strconv.ParseInt(input, 10, 64); err != nil {
			return "", errors.New(msg)
		}
		return input, nil
	}
}
