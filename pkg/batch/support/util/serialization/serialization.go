// Package serialization renders configuration documents with secrets masked.
package serialization

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	config "github.com/tigerroll/simsweep/pkg/batch/core/config"
	"github.com/tigerroll/simsweep/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/simsweep/pkg/batch/support/util/logger"
)

// Mask replaces a secret value.
const Mask = "********"

// MaskedConfig returns a copy of cfg whose database passwords are masked.
// The sections that are not secret are shared with cfg.
func MaskedConfig(cfg *config.Config) *config.Config {
	masked := *cfg
	if cfg.Sweep.Database != nil {
		masked.Sweep.Database = make(map[string]config.DatabaseConfig, len(cfg.Sweep.Database))
		for name, db := range cfg.Sweep.Database {
			if db.Password != "" {
				db.Password = Mask
			}
			masked.Sweep.Database[name] = db
		}
	}
	return &masked
}

// MarshalConfig serializes the masked cfg as "yaml" or "json".
func MarshalConfig(cfg *config.Config, format string) ([]byte, error) {
	module := "serialization"
	masked := MaskedConfig(cfg)

	switch strings.ToLower(format) {
	case "", "yaml":
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(masked); err != nil {
			logger.Errorf("Failed to serialize configuration: %v", err)
			return nil, exception.NewBatchError(module, "Failed to serialize configuration", err, false, false)
		}
		if err := enc.Close(); err != nil {
			return nil, exception.NewBatchError(module, "Failed to serialize configuration", err, false, false)
		}
		return buf.Bytes(), nil
	case "json":
		data, err := json.MarshalIndent(masked, "", "  ")
		if err != nil {
			logger.Errorf("Failed to serialize configuration: %v", err)
			return nil, exception.NewBatchError(module, "Failed to serialize configuration", err, false, false)
		}
		return append(data, '\n'), nil
	default:
		return nil, exception.NewBatchError(module, fmt.Sprintf("unsupported output format '%s'", format), nil, false, false)
	}
}
