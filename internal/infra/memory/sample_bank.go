package memory

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"quiz-live-service/internal/domain"
)

//go:embed banks/default.yaml
var defaultBankYAML []byte

// SampleBank returns the built-in demo bank used when no bank file or database is configured.
func SampleBank() (domain.ItemBank, error) {
	var bank domain.ItemBank
	if err := yaml.Unmarshal(defaultBankYAML, &bank); err != nil {
		return domain.ItemBank{}, fmt.Errorf("parse sample bank: %w", err)
	}
	prepare(&bank)
	return bank, nil
}
