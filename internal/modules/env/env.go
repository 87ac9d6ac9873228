package env

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

var (
	ErrNotFound         = errors.New("environment variable with key not found")
	ErrConversionFailed = errors.New("failed to convert environment variable with key to value")
)

func errNotFound(key string) error {
	return fmt.Errorf("key: %s: %w", key, ErrNotFound)
}

func errConversionFailed(key string, typeName string, err error) error {
	return fmt.Errorf("key: %s type: %s: %w: %s", key, typeName, ErrConversionFailed, err.Error())
}

func MustGetString(key string) string {
	if val, found := os.LookupEnv(key); found {
		return val
	}

	panic(errNotFound(key))
}

func MustGetInt(key string) int {
	envVal, found := os.LookupEnv(key)
	if !found {
		panic(errNotFound(key))
	}

	val, err := strconv.Atoi(envVal)
	if err != nil {
		panic(errConversionFailed(key, reflect.TypeOf(val).Name(), err))
	}

	return val
}

func MustGetURL(key string) *url.URL {
	val, found := os.LookupEnv(key)
	if !found {
		panic(errNotFound(key))
	}

	u, err := url.Parse(val)
	if err != nil {
		panic(errConversionFailed(key, reflect.TypeOf(u).Name(), err))
	}

	return u
}

func GetStringOrDefault(key string, def string) string {
	if val, found := os.LookupEnv(key); found && val != "" {
		return val
	}

	return def
}

func GetIntOrDefault(key string, def int) int {
	envVal, found := os.LookupEnv(key)
	if !found || envVal == "" {
		return def
	}

	val, err := strconv.Atoi(envVal)
	if err != nil {
		panic(errConversionFailed(key, reflect.TypeOf(val).Name(), err))
	}

	return val
}

func GetBoolOrDefault(key string, def bool) bool {
	envVal, found := os.LookupEnv(key)
	if !found || envVal == "" {
		return def
	}

	val, err := strconv.ParseBool(envVal)
	if err != nil {
		panic(errConversionFailed(key, reflect.TypeOf(val).Name(), err))
	}

	return val
}

// GetDurationOrDefault accepts Go duration strings ("5s", "250ms").
func GetDurationOrDefault(key string, def time.Duration) time.Duration {
	envVal, found := os.LookupEnv(key)
	if !found || envVal == "" {
		return def
	}

	val, err := time.ParseDuration(envVal)
	if err != nil {
		panic(errConversionFailed(key, "time.Duration", err))
	}

	return val
}

// GetListOrDefault splits a comma separated value, dropping empty entries.
func GetListOrDefault(key string, def []string) []string {
	envVal, found := os.LookupEnv(key)
	if !found || envVal == "" {
		return def
	}

	var values []string
	for _, part := range strings.Split(envVal, ",") {
		if part = strings.TrimSpace(part); part != "" {
			values = append(values, part)
		}
	}

	return values
}
