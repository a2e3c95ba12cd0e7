package theme

import (
	"io/fs"
	"os"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/trezcool/prepcards/core/textstats"
)

var ErrInvalidDictionary = errors.New("invalid theme dictionary")

type (
	// Theme is a named pedagogical issue category.
	Theme struct {
		Name          string   `yaml:"name" json:"name"`
		Description   string   `yaml:"description" json:"description"`
		Keywords      []string `yaml:"keywords" json:"keywords"`
		DirectReasons []string `yaml:"directReasons" json:"directReasons,omitempty"`
	}

	// Dictionary is a versioned, immutable set of themes.
	Dictionary struct {
		name    string
		version int
		themes  []Theme
	}

	dictionaryFile struct {
		Name    string  `yaml:"name"`
		Version int     `yaml:"version"`
		Themes  []Theme `yaml:"themes"`
	}
)

// NewDictionary validates and normalizes themes. Keywords are trimmed and lower-cased.
func NewDictionary(name string, version int, themes []Theme) (*Dictionary, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.Wrap(ErrInvalidDictionary, "name is required")
	}
	if len(themes) == 0 {
		return nil, errors.Wrapf(ErrInvalidDictionary, "%s: no themes", name)
	}

	seen := make(map[string]struct{}, len(themes))
	normalized := make([]Theme, 0, len(themes))
	for _, th := range themes {
		th.Name = strings.TrimSpace(th.Name)
		if th.Name == "" {
			return nil, errors.Wrapf(ErrInvalidDictionary, "%s: theme name is required", name)
		}
		if _, ok := seen[th.Name]; ok {
			return nil, errors.Wrapf(ErrInvalidDictionary, "%s: duplicate theme %q", name, th.Name)
		}
		seen[th.Name] = struct{}{}

		keywords := make([]string, 0, len(th.Keywords))
		for _, kw := range th.Keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw == "" {
				continue
			}
			if toks := textstats.Tokenize(kw); len(toks) != 1 || toks[0] != kw {
				return nil, errors.Wrapf(ErrInvalidDictionary, "%s: theme %q: keyword %q is not a single token", name, th.Name, kw)
			}
			keywords = append(keywords, kw)
		}
		reasons := make([]string, 0, len(th.DirectReasons))
		for _, r := range th.DirectReasons {
			if r = strings.TrimSpace(r); r != "" {
				reasons = append(reasons, r)
			}
		}
		if len(keywords) == 0 && len(reasons) == 0 {
			return nil, errors.Wrapf(ErrInvalidDictionary, "%s: theme %q has neither keywords nor direct reasons", name, th.Name)
		}

		th.Keywords = keywords
		th.DirectReasons = reasons
		normalized = append(normalized, th)
	}

	return &Dictionary{name: name, version: version, themes: normalized}, nil
}

// ParseDictionary parses a YAML dictionary.
func ParseDictionary(data []byte) (*Dictionary, error) {
	var df dictionaryFile
	if err := yaml.Unmarshal(data, &df); err != nil {
		return nil, errors.Wrap(err, "decoding dictionary")
	}
	return NewDictionary(df.Name, df.Version, df.Themes)
}

// LoadDictionary reads the dictionary at path in fsys, or from the local filesystem if override is set.
func LoadDictionary(fsys fs.FS, path, override string) (*Dictionary, error) {
	var (
		data []byte
		err  error
	)
	if override != "" {
		data, err = os.ReadFile(override)
		path = override
	} else {
		data, err = fs.ReadFile(fsys, path)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reading dictionary %s", path)
	}

	dict, err := ParseDictionary(data)
	return dict, errors.Wrapf(err, "loading dictionary %s", path)
}

func (d *Dictionary) Name() string { return d.name }
func (d *Dictionary) Version() int { return d.version }

// Themes returns a copy of the dictionary themes.
func (d *Dictionary) Themes() []Theme {
	themes := make([]Theme, 0, len(d.themes))
	for _, th := range d.themes {
		themes = append(themes, Theme{
			Name:          th.Name,
			Description:   th.Description,
			Keywords:      append([]string(nil), th.Keywords...),
			DirectReasons: append([]string(nil), th.DirectReasons...),
		})
	}
	return themes
}

// ThemeNames returns the theme names in dictionary order.
func (d *Dictionary) ThemeNames() []string {
	names := make([]string, 0, len(d.themes))
	for _, th := range d.themes {
		names = append(names, th.Name)
	}
	return names
}
