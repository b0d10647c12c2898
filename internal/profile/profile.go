// Package profile loads source profiles: named, ordered lists of
// adapter configurations with environment-style variable substitution.
// A profile document is plain YAML so deployments can swap indexer
// sets without code changes.
package profile

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Document is the top-level profile file.
type Document struct {
	DefaultProfile string             `yaml:"default_profile"`
	Profiles       map[string]Profile `yaml:"profiles"`
}

// Profile is one named adapter lineup.
type Profile struct {
	Description string          `yaml:"description"`
	Indexers    []IndexerConfig `yaml:"indexers"`
}

// IndexerConfig configures one adapter slot in a profile.
type IndexerConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"` // torznab, html, stream
	Enabled    bool   `yaml:"enabled"`
	BaseURL    string `yaml:"base_url,omitempty"`
	APIKey     string `yaml:"api_key,omitempty"`
	IndexerID  string `yaml:"indexer_id,omitempty"`
	Categories []int  `yaml:"categories,omitempty"`
	// Timeout is the per-adapter request deadline in seconds.
	Timeout int `yaml:"timeout,omitempty"`
}

// Adapter type names accepted in profile documents.
const (
	TypeTorznab = "torznab"
	TypeHTML    = "html"
	TypeStream  = "stream"
)

var varPattern = regexp.MustCompile(`\$\{(\w+)\}`)

// ParseDocument parses a profile document from bytes.
func ParseDocument(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse profile YAML: %w", err)
	}
	return &doc, nil
}

// LoadDocument parses a profile document from a file.
func LoadDocument(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile file: %w", err)
	}
	return ParseDocument(data)
}

// Names returns the profile names defined in the document.
func (d *Document) Names() []string {
	names := make([]string, 0, len(d.Profiles))
	for name := range d.Profiles {
		names = append(names, name)
	}
	return names
}

// Resolve returns the named profile, or the document default when
// name is empty. The boolean reports whether a profile was found.
func (d *Document) Resolve(name string) (Profile, string, bool) {
	if name == "" {
		name = d.DefaultProfile
	}
	p, ok := d.Profiles[name]
	return p, name, ok
}

// Substitute expands ${VAR} tokens in every string field of the
// profile from the given context. Unknown variables stay literal so a
// missing secret is visible downstream instead of silently empty.
func (p Profile) Substitute(context map[string]string) Profile {
	out := Profile{
		Description: substituteString(p.Description, context),
		Indexers:    make([]IndexerConfig, len(p.Indexers)),
	}
	for i, idx := range p.Indexers {
		idx.Name = substituteString(idx.Name, context)
		idx.BaseURL = substituteString(idx.BaseURL, context)
		idx.APIKey = substituteString(idx.APIKey, context)
		idx.IndexerID = substituteString(idx.IndexerID, context)
		out.Indexers[i] = idx
	}
	return out
}

func substituteString(s string, context map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(token string) string {
		key := varPattern.FindStringSubmatch(token)[1]
		if val, ok := context[key]; ok {
			return val
		}
		return token
	})
}

// EnvContext builds a substitution context from the process
// environment, optionally overlaid with extra values.
func EnvContext(extra map[string]string) map[string]string {
	context := make(map[string]string)
	for _, kv := range os.Environ() {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				context[kv[:i]] = kv[i+1:]
				break
			}
		}
	}
	for k, v := range extra {
		context[k] = v
	}
	return context
}
