// Package config loads experiment case files in YAML, JSON or XML form and
// validates them into ready-to-run cases.
package config

import (
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"nkinnov/internal/landscape"
	"nkinnov/internal/model"
)

// File is the on-disk shape shared by all three formats. XML keeps the
// element names case, runs, inf, strategy, innovator and provider.
type File struct {
	Cases []CaseSpec `yaml:"cases" json:"cases" xml:"case"`
}

// CaseSpec declares one case. Exactly one of Matrix (a file path, relative
// to the case file) and Dependencies (inline rows of 0/1) must be set.
type CaseSpec struct {
	Runs         int              `yaml:"runs" json:"runs" xml:"runs" validate:"gte=1"`
	Matrix       string           `yaml:"matrix,omitempty" json:"matrix,omitempty" xml:"inf" validate:"required_without=Dependencies,excluded_with=Dependencies"`
	Dependencies [][]int          `yaml:"dependencies,omitempty" json:"dependencies,omitempty" xml:"-"`
	Strategies   []string         `yaml:"strategies" json:"strategies" xml:"strategy" validate:"required,min=1,dive,strategy"`
	Innovators   []InnovatorGroup `yaml:"innovators" json:"innovators" xml:"innovator" validate:"dive"`
	Providers    []ProviderGroup  `yaml:"providers" json:"providers" xml:"provider" validate:"dive"`
}

// InnovatorGroup is Count identical innovators.
type InnovatorGroup struct {
	Count int `yaml:"count" json:"count" xml:"num" validate:"gte=0"`
	Power int `yaml:"power" json:"power" xml:"power" validate:"gte=1"`
	M     int `yaml:"m" json:"m" xml:"M" validate:"gte=0"`
	P     int `yaml:"p" json:"p" xml:"P" validate:"gte=0"`
}

// ProviderGroup is Count identical providers.
type ProviderGroup struct {
	Count int `yaml:"count" json:"count" xml:"num" validate:"gte=0"`
	Power int `yaml:"power" json:"power" xml:"power" validate:"gte=1"`
	Q     int `yaml:"q" json:"q" xml:"Q" validate:"gte=0"`
}

// Format selects a decoder.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
	FormatXML  Format = "xml"
)

// FormatForPath picks the format from a file extension.
func FormatForPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	case ".xml":
		return FormatXML, nil
	default:
		return "", fmt.Errorf("unsupported case file extension %q", filepath.Ext(path))
	}
}

// Case is a validated case with its dependency structure already built.
type Case struct {
	Index      int
	Runs       int
	Source     string
	Structure  *landscape.Structure
	Strategies []model.Strategy
	Innovators []InnovatorGroup
	Providers  []ProviderGroup
}

func (c Case) InnovatorCount() int {
	total := 0
	for _, g := range c.Innovators {
		total += g.Count
	}
	return total
}

func (c Case) ProviderCount() int {
	total := 0
	for _, g := range c.Providers {
		total += g.Count
	}
	return total
}

// Experiment is every case of one case file.
type Experiment struct {
	Path  string
	Cases []Case
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("strategy", func(fl validator.FieldLevel) bool {
		_, err := model.ParseStrategy(fl.Field().String())
		return err == nil
	})
	return v
}

// Load reads, decodes and validates a case file.
func Load(path string) (*Experiment, error) {
	format, err := FormatForPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read case file: %w", err)
	}
	exp, err := Parse(data, format, filepath.Dir(path))
	if err != nil {
		return nil, err
	}
	exp.Path = path
	return exp, nil
}

// Decode parses data without validating it.
func Decode(data []byte, format Format) (File, error) {
	var f File
	var err error
	switch format {
	case FormatYAML:
		err = yaml.Unmarshal(data, &f)
	case FormatJSON:
		err = json.Unmarshal(data, &f)
	case FormatXML:
		err = xml.Unmarshal(data, &f)
	default:
		return f, fmt.Errorf("unsupported case file format %q", format)
	}
	if err != nil {
		return f, &ConfigurationError{Case: -1, Reason: fmt.Sprintf("malformed %s", format), Err: err}
	}
	return f, nil
}

// Parse decodes and validates data. Relative matrix paths resolve against
// baseDir.
func Parse(data []byte, format Format, baseDir string) (*Experiment, error) {
	f, err := Decode(data, format)
	if err != nil {
		return nil, err
	}
	return f.Resolve(baseDir)
}

// Resolve validates every case and builds its dependency structure.
func (f File) Resolve(baseDir string) (*Experiment, error) {
	if len(f.Cases) == 0 {
		return nil, &ConfigurationError{Case: -1, Field: "cases", Reason: "no cases declared"}
	}
	exp := &Experiment{Cases: make([]Case, 0, len(f.Cases))}
	for i, spec := range f.Cases {
		c, err := spec.resolve(i, baseDir)
		if err != nil {
			return nil, err
		}
		exp.Cases = append(exp.Cases, c)
	}
	return exp, nil
}

func (spec CaseSpec) resolve(index int, baseDir string) (Case, error) {
	spec.Matrix = strings.TrimSpace(spec.Matrix)
	if err := validate.Struct(spec); err != nil {
		return Case{}, fromValidation(index, err)
	}

	rows, source := spec.Dependencies, "inline"
	if spec.Matrix != "" {
		source = spec.Matrix
		if !filepath.IsAbs(source) && baseDir != "" {
			source = filepath.Join(baseDir, source)
		}
		var err error
		rows, err = LoadMatrix(source)
		if err != nil {
			return Case{}, &ConfigurationError{Case: index, Field: "matrix", Reason: "cannot read dependency matrix", Err: err}
		}
	}
	structure, err := landscape.NewStructure(rows)
	if err != nil {
		return Case{}, fmt.Errorf("case %d: %w", index, err)
	}

	n := structure.N()
	for i, g := range spec.Innovators {
		if g.M+g.P > n {
			return Case{}, &ConfigurationError{
				Case:   index,
				Field:  fmt.Sprintf("innovators[%d]", i),
				Reason: fmt.Sprintf("M+P=%d exceeds N=%d", g.M+g.P, n),
			}
		}
	}
	for i, g := range spec.Providers {
		if g.Q > n {
			return Case{}, &ConfigurationError{
				Case:   index,
				Field:  fmt.Sprintf("providers[%d]", i),
				Reason: fmt.Sprintf("Q=%d exceeds N=%d", g.Q, n),
			}
		}
	}

	return Case{
		Index:      index,
		Runs:       spec.Runs,
		Source:     source,
		Structure:  structure,
		Strategies: dedupeStrategies(spec.Strategies),
		Innovators: append([]InnovatorGroup(nil), spec.Innovators...),
		Providers:  append([]ProviderGroup(nil), spec.Providers...),
	}, nil
}

// dedupeStrategies keeps declared order and drops repeats. Names were
// checked by the validator.
func dedupeStrategies(names []string) []model.Strategy {
	seen := map[model.Strategy]bool{}
	out := make([]model.Strategy, 0, len(names))
	for _, name := range names {
		s, err := model.ParseStrategy(name)
		if err != nil || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

func fromValidation(index int, err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &ConfigurationError{Case: index, Reason: "invalid case", Err: err}
	}
	first := verrs[0]
	field := strings.TrimPrefix(first.Namespace(), "CaseSpec.")
	reason := fmt.Sprintf("failed %q", first.Tag())
	if first.Param() != "" {
		reason = fmt.Sprintf("failed %s=%s", first.Tag(), first.Param())
	}
	if first.Tag() == "strategy" {
		reason = fmt.Sprintf("unknown strategy %q", first.Value())
	}
	return &ConfigurationError{Case: index, Field: field, Reason: reason, Err: err}
}
