// Package categorize assigns category names to transactions by keyword
// matching against the payment purpose text.
package categorize

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/qazaqfin/bankimport/internal/domain"
)

//go:embed rules.yaml
var embeddedRules []byte

// FallbackCategory is returned when no keyword bucket matches.
const FallbackCategory = "Other"

// TransferCategory is the fixed category for inter-account transfers; it is
// assigned by the text-format parser independent of keyword matching.
const TransferCategory = "Перевод между счетами"

// SalaryCategory is the override bucket applied by tabular parsers when the
// purpose mentions salary.
const SalaryCategory = "Зарплата"

// salaryKeywords drive the tabular parsers' salary override.
var salaryKeywords = []string{"зарплат", "заработн", "оплата труда"}

// Bucket maps a category name to its lowercase keyword substrings.
type Bucket struct {
	Category string   `yaml:"category"`
	Keywords []string `yaml:"keywords"`
}

type ruleFile struct {
	Buckets []Bucket `yaml:"buckets"`
}

// Engine matches payment purposes against an ordered list of keyword
// buckets. Buckets are evaluated in file order; the first match wins.
type Engine struct {
	buckets []Bucket
}

// NewEngine creates an engine from YAML rule data.
func NewEngine(data []byte) (*Engine, error) {
	var rf ruleFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("failed to parse category rules (check YAML syntax and field names): %w", err)
	}

	for i, b := range rf.Buckets {
		if strings.TrimSpace(b.Category) == "" {
			return nil, fmt.Errorf("bucket %d: category name cannot be empty", i)
		}
		if len(b.Keywords) == 0 {
			return nil, fmt.Errorf("bucket %d (%s): keyword list cannot be empty", i, b.Category)
		}
		for j, kw := range b.Keywords {
			if strings.TrimSpace(kw) == "" {
				return nil, fmt.Errorf("bucket %d (%s): keyword %d is empty", i, b.Category, j)
			}
		}
	}

	return &Engine{buckets: rf.Buckets}, nil
}

// LoadEmbedded loads the built-in rules.yaml.
func LoadEmbedded() (*Engine, error) {
	engine, err := NewEngine(embeddedRules)
	if err != nil {
		return nil, fmt.Errorf("failed to load embedded rules: %w", err)
	}
	return engine, nil
}

// LoadFromFile loads rules from a filesystem path.
func LoadFromFile(path string) (*Engine, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}
	engine, err := NewEngine(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules from %q: %w", path, err)
	}
	return engine, nil
}

// Match returns the first category name whose keyword list has a substring
// match against the purpose text (case-insensitive), or FallbackCategory.
func (e *Engine) Match(purpose string) string {
	normalized := strings.ToLower(strings.TrimSpace(purpose))
	if normalized == "" {
		return FallbackCategory
	}
	for _, b := range e.buckets {
		for _, kw := range b.Keywords {
			if strings.Contains(normalized, strings.ToLower(kw)) {
				return b.Category
			}
		}
	}
	return FallbackCategory
}

// IsSalary reports whether the purpose text mentions salary, driving the
// tabular parsers' category override.
func IsSalary(purpose string) bool {
	normalized := strings.ToLower(purpose)
	for _, kw := range salaryKeywords {
		if strings.Contains(normalized, kw) {
			return true
		}
	}
	return false
}

// ColorFor returns the deterministic display color for a category created
// on demand for the given direction.
func ColorFor(t domain.CategoryType) string {
	switch t {
	case domain.CategoryTypeIncome:
		return "#2e7d32"
	case domain.CategoryTypeExpense:
		return "#c62828"
	default:
		return "#1565c0"
	}
}
