// Package codes turns scanner and keyboard text into canonical payment codes.
package codes

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

const DefaultPrefix = "CASH"

var ErrEmptyCode = errors.New("EMPTY_CODE")

// Normalizer is safe for concurrent use.
type Normalizer struct {
	Prefix  string
	pattern *regexp.Regexp
}

// NewNormalizer builds a normalizer for PREFIX-<digits> codes. Any run of
// non-digit characters between the prefix and the digits is a separator.
func NewNormalizer(prefix string) *Normalizer {
	prefix = strings.ToUpper(strings.TrimSpace(prefix))
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Normalizer{
		Prefix:  prefix,
		pattern: regexp.MustCompile(`^\s*` + regexp.QuoteMeta(prefix) + `[^0-9]*([0-9]+)\s*$`),
	}
}

// Validate rejects input that must not reach normalization.
func (n *Normalizer) Validate(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyCode
	}
	return nil
}

// Normalize returns PREFIX-<digits> and true on a match. Otherwise it returns
// the upper-cased input unchanged and false.
func (n *Normalizer) Normalize(text string) (string, bool) {
	upper := strings.ToUpper(text)
	m := n.pattern.FindStringSubmatch(upper)
	if m == nil {
		return upper, false
	}
	return fmt.Sprintf("%s-%s", n.Prefix, m[1]), true
}
