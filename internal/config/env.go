package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads KEY=VALUE pairs from the given files into the process
// environment. Variables that are already set are not overridden, and
// missing files are skipped. Call it before [Load] so that ${VAR}
// references in the YAML can see the values.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("config: load %q: %w", p, err)
		}
	}
	return nil
}
