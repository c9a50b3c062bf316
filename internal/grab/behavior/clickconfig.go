package behavior

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed data/click.yaml
var defaultClickConfigYAML []byte

// ClickSelector is one clickable element within a ClickConfig document,
// grounded on crocoite's data/click.yaml entries as rendered by its
// Sphinx doc/_ext/clicklist.py extension: each carries a human
// description, the set of URLs it was recorded against, and the CSS
// selector actually injected into the page (spec.md §6).
type ClickSelector struct {
	Description string   `yaml:"description"`
	URLs        []string `yaml:"urls"`
	Selector    string   `yaml:"selector"`
}

// ClickConfig is one parsed site-click document: a regex tested against
// the grab's host, and the selectors to inject when it matches,
// grounded on crocoite's behavior.py Click (loads data/click.yaml via
// yaml.safe_load_all into self.options['sites']) and on EdgeComet's
// gopkg.in/yaml.v3 configuration stack.
type ClickConfig struct {
	Match    string          `yaml:"match"`
	Selector []ClickSelector `yaml:"selector"`
}

// ParseClickConfig parses one or more YAML documents (separated by
// "---") into a slice of ClickConfig, mirrored on yaml.safe_load_all's
// multi-document loading.
func ParseClickConfig(raw []byte) ([]ClickConfig, error) {
	dec := yaml.NewDecoder(strings.NewReader(string(raw)))
	var out []ClickConfig
	for {
		var cfg ClickConfig
		if err := dec.Decode(&cfg); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("behavior: parse click config: %w", err)
		}
		out = append(out, cfg)
	}
	return out, nil
}

// DefaultClickConfig returns the bundled click.yaml parsed into
// ClickConfig documents.
func DefaultClickConfig() []ClickConfig {
	cfgs, err := ParseClickConfig(defaultClickConfigYAML)
	if err != nil {
		// The bundled document is fixed at build time; a parse
		// failure here means the asset itself is broken.
		panic(fmt.Sprintf("behavior: bundled click.yaml is invalid: %v", err))
	}
	return cfgs
}

// selectorsFor returns the CSS selectors from every document whose
// match regex matches host, mirrored on spec.md §6's "match (regex on
// host)" contract. A document with an invalid regex is skipped with no
// selectors contributed, rather than failing the whole grab.
func selectorsFor(cfgs []ClickConfig, host string) []string {
	var out []string
	for _, c := range cfgs {
		re, err := regexp.Compile(c.Match)
		if err != nil || !re.MatchString(host) {
			continue
		}
		for _, s := range c.Selector {
			if s.Selector != "" {
				out = append(out, s.Selector)
			}
		}
	}
	return out
}
