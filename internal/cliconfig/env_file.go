package cliconfig

import (
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"slices"

	"github.com/joho/godotenv"
)

// DefaultEnvFile is read from the working directory when no env file is given.
const DefaultEnvFile = ".env"

// LoadEnvFile reads a dotenv file into the process environment. Variables
// already set in the environment are kept. A missing file is not an error.
// It returns the number of variables it set.
func LoadEnvFile(path string) (int, error) {
	vars, err := godotenv.Read(path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%s: %w", path, err)
	}

	set := 0
	for _, key := range slices.Sorted(maps.Keys(vars)) {
		if _, ok := os.LookupEnv(key); ok {
			continue
		}
		if err := os.Setenv(key, vars[key]); err != nil {
			return set, fmt.Errorf("set %s: %w", key, err)
		}
		set++
	}
	return set, nil
}
