package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"mqtt-cluster/config"
	"mqtt-cluster/internal/logger"
)

// PolicyLoader reads user definitions from policy files
type PolicyLoader struct {
	logger *logger.Logger
}

// NewPolicyLoader creates a new policy loader
func NewPolicyLoader(log *logger.Logger) *PolicyLoader {
	return &PolicyLoader{
		logger: log,
	}
}

// LoadFromDirectory loads users from every .yaml, .yml and .json file in
// a directory and its subdirectories. Each file holds a list of users.
func (l *PolicyLoader) LoadFromDirectory(path string) ([]config.UserConfig, error) {
	var users []config.UserConfig

	err := filepath.Walk(path, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		ext := filepath.Ext(path)
		if ext != ".json" && ext != ".yaml" && ext != ".yml" {
			return nil
		}

		l.logger.Debug("loading policy file", "path", path)

		data, err := os.ReadFile(path)
		if err != nil {
			l.logger.Error("failed to read policy file",
				"path", path,
				"error", err)
			return err
		}

		var fileUsers []config.UserConfig
		if ext == ".json" {
			err = json.Unmarshal(data, &fileUsers)
		} else {
			err = yaml.Unmarshal(data, &fileUsers)
		}
		if err != nil {
			l.logger.Error("failed to parse policy file",
				"path", path,
				"error", err)
			return fmt.Errorf("%s: %w", path, err)
		}

		l.logger.Debug("successfully loaded users",
			"path", path,
			"count", len(fileUsers))

		users = append(users, fileUsers...)
		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to load policies: %w", err)
	}

	l.logger.Info("policies loaded successfully",
		"totalUsers", len(users))

	return users, nil
}
