// Package scenario reads a planning scenario document and assembles the
// dispatch pipeline and genetic search it describes.
//
// A scenario has five sections:
//
//	master:     run_periods, dispatch_order, iterations, output_frequency, start_gene
//	algorithm:  the genetic search settings
//	global:     values inherited by every other section that accepts them
//	data:       ts_length, series and tables supplied inline
//	generators: one entry per component, each with a model name
//
// Keys a section does not recognise are logged and ignored.
package scenario

import (
	"bytes"
	"io"
	"os"
	"reflect"
	"sort"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/copyleftdev/gridplan/internal/capacity"
	apperrors "github.com/copyleftdev/gridplan/internal/errors"
	"github.com/copyleftdev/gridplan/internal/generator"
	"github.com/copyleftdev/gridplan/internal/optimization/genetic"
)

// Master holds the run-level settings.
type Master struct {
	Name            string   `yaml:"name" json:"name,omitempty"`
	RunPeriods      []int    `yaml:"run_periods" json:"run_periods"`
	DispatchOrder   []string `yaml:"dispatch_order" json:"dispatch_order"`
	Iterations      int      `yaml:"iterations" json:"iterations"`
	OutputFrequency int      `yaml:"output_frequency" json:"output_frequency"`
	StartGene       []int    `yaml:"start_gene" json:"start_gene,omitempty"`
	// DemandDataName names the demand series used when no demand component
	// is dispatched.
	DemandDataName string `yaml:"demand_data_name" json:"demand_data_name,omitempty"`
}

// Global holds the values the pipeline itself reads from the global
// section. Every global key is also offered to the other sections.
type Global struct {
	TimePeriodYrs   int                           `yaml:"time_period_yrs"`
	MinParamVal     int                           `yaml:"min_param_val"`
	MaxParamVal     int                           `yaml:"max_param_val"`
	TimestepHrs     float64                       `yaml:"timestep_hrs"`
	TimeScaleUpMult capacity.PeriodValue[float64] `yaml:"time_scale_up_mult"`
}

// Data is the inline data section.
type Data struct {
	TSLength int                    `yaml:"ts_length"`
	Series   map[string][]float64   `yaml:"series"`
	Tables   map[string][][]float64 `yaml:"tables"`
}

// Section is one generator entry before it is built.
type Section struct {
	Name  string
	Model string
	node  *yaml.Node
}

// Scenario is a parsed scenario. Callers may adjust Master and Algorithm
// before calling Build.
type Scenario struct {
	Master    Master
	Algorithm genetic.Config
	Global    Global
	Data      Data

	sections     map[string]*Section
	globals      map[string]*yaml.Node
	processesSet bool
	logger       *zap.Logger
}

// Option configures loading.
type Option func(*Scenario)

// WithLogger sets the logger used for warnings about ignored keys.
func WithLogger(l *zap.Logger) Option {
	return func(s *Scenario) {
		if l != nil {
			s.logger = l
		}
	}
}

var topLevelKeys = map[string]bool{
	"master": true, "algorithm": true, "global": true, "data": true, "generators": true,
}

// LoadFile reads a scenario from path.
func LoadFile(path string, opts ...Option) (*Scenario, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.Wrapf(err, "reading scenario %s", path)
	}
	return Load(bytes.NewReader(b), opts...)
}

// Load parses a scenario document. YAML and JSON are both accepted.
func Load(r io.Reader, opts ...Option) (*Scenario, error) {
	const op = "scenario.Load"

	s := &Scenario{
		Master: Master{
			RunPeriods:      []int{2010},
			Iterations:      100,
			OutputFrequency: 500,
		},
		Algorithm: genetic.DefaultConfig(),
		sections:  make(map[string]*Section),
		globals:   make(map[string]*yaml.Node),
		logger:    zap.NewNop(),
	}
	for _, o := range opts {
		o(s)
	}

	var doc yaml.Node
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if err == io.EOF {
			return nil, apperrors.Config(op, "scenario is empty")
		}
		return nil, apperrors.Config(op, "parsing scenario: %v", err)
	}
	root := &doc
	if root.Kind == yaml.DocumentNode && len(root.Content) > 0 {
		root = root.Content[0]
	}
	if root.Kind != yaml.MappingNode {
		return nil, apperrors.Config(op, "scenario must be a mapping of sections")
	}

	top := pairs(root)
	for _, k := range sortedKeys(top) {
		if !topLevelKeys[k] {
			s.logger.Warn("unexpected scenario section ignored", zap.String("section", k))
		}
	}

	if g, ok := top["global"]; ok {
		if g.Kind != yaml.MappingNode {
			return nil, apperrors.Config(op, "section global must be a mapping")
		}
		s.globals = pairs(g)
		if err := g.Decode(&s.Global); err != nil {
			return nil, apperrors.Config(op, "In section global: %v", err)
		}
	}

	if m, ok := top["master"]; ok {
		if err := s.decodeSection("master", m, &s.Master, nil); err != nil {
			return nil, err
		}
	}
	if a, ok := top["algorithm"]; ok {
		if err := s.decodeSection("algorithm", a, &s.Algorithm, nil); err != nil {
			return nil, err
		}
		_, s.processesSet = pairs(a)["processes"]
	} else {
		if err := s.decodeSection("algorithm", &yaml.Node{Kind: yaml.MappingNode}, &s.Algorithm, nil); err != nil {
			return nil, err
		}
	}
	if _, ok := s.globals["processes"]; ok {
		s.processesSet = true
	}
	if d, ok := top["data"]; ok {
		if err := s.decodeSection("data", d, &s.Data, nil); err != nil {
			return nil, err
		}
	}

	if g, ok := top["generators"]; ok {
		if g.Kind != yaml.MappingNode {
			return nil, apperrors.Config(op, "section generators must be a mapping")
		}
		for name, node := range pairs(g) {
			sec, err := newSection(name, node)
			if err != nil {
				return nil, err
			}
			s.sections[name] = sec
		}
	}

	if err := s.validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func newSection(name string, node *yaml.Node) (*Section, error) {
	if node.Kind != yaml.MappingNode {
		return nil, apperrors.Config("scenario.Load", "In section %s, expected a mapping", name)
	}
	m, ok := pairs(node)["model"]
	if !ok || m.Value == "" {
		return nil, apperrors.Config("scenario.Load", "In section %s, model is required", name)
	}
	return &Section{Name: name, Model: m.Value, node: node}, nil
}

func (s *Scenario) validate() error {
	const op = "scenario.validate"
	m := s.Master
	if len(m.DispatchOrder) == 0 {
		return apperrors.Config(op, "In section master, dispatch_order is required")
	}
	for _, name := range m.DispatchOrder {
		if _, ok := s.sections[name]; !ok {
			return apperrors.Config(op, "In section master, dispatch_order names %s which has no generators entry", name)
		}
	}
	if len(m.RunPeriods) == 0 {
		return apperrors.Config(op, "In section master, run_periods is required")
	}
	if m.Iterations < 0 {
		return apperrors.Config(op, "In section master, iterations must be >= 0, got %d", m.Iterations)
	}
	if m.OutputFrequency < 0 {
		return apperrors.Config(op, "In section master, output_frequency must be >= 0, got %d", m.OutputFrequency)
	}

	inOrder := make(map[string]bool, len(m.DispatchOrder))
	for _, name := range m.DispatchOrder {
		inOrder[name] = true
	}
	for _, name := range s.SectionNames() {
		if !inOrder[name] {
			s.logger.Warn("generator section not in dispatch_order, ignored", zap.String("section", name))
		}
	}
	return nil
}

// SectionNames lists the generator sections, sorted.
func (s *Scenario) SectionNames() []string {
	names := make([]string, 0, len(s.sections))
	for name := range s.sections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Section returns the generator section called name.
func (s *Scenario) Section(name string) (*Section, bool) {
	sec, ok := s.sections[name]
	return sec, ok
}

// SetDefaultProcesses sets the worker count unless the scenario chose one.
func (s *Scenario) SetDefaultProcesses(n int) {
	if !s.processesSet {
		s.Algorithm.Processes = n
	}
}

// decodeSection decodes node into out after adding any global values out
// accepts and the section does not set. extra lists keys handled by the
// caller.
func (s *Scenario) decodeSection(name string, node *yaml.Node, out interface{}, extra map[string]bool) error {
	if node.Kind != yaml.MappingNode {
		if node.Kind == yaml.ScalarNode && node.Tag == "!!null" {
			node = &yaml.Node{Kind: yaml.MappingNode}
		} else {
			return apperrors.Config("scenario.decodeSection", "In section %s, expected a mapping", name)
		}
	}

	known := make(map[string]bool)
	yamlKeys(reflect.TypeOf(out), known)
	own := pairs(node)
	for _, k := range sortedKeys(own) {
		if !known[k] && !extra[k] {
			s.logger.Warn("unexpected configuration parameter ignored",
				zap.String("section", name), zap.String("parameter", k))
		}
	}

	merged := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, k := range sortedKeys(s.globals) {
		if _, set := own[k]; set || !known[k] {
			continue
		}
		merged.Content = append(merged.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k}, s.globals[k])
	}
	merged.Content = append(merged.Content, node.Content...)

	if err := merged.Decode(out); err != nil {
		return apperrors.Config("scenario.decodeSection", "In section %s: %v", name, err)
	}
	return nil
}

// yamlKeys collects the yaml keys a struct type decodes, following inline
// fields.
func yamlKeys(t reflect.Type, into map[string]bool) {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return
	}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name, opts, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			continue
		}
		if strings.Contains(opts, "inline") {
			yamlKeys(f.Type, into)
			continue
		}
		if !f.IsExported() {
			continue
		}
		if name == "" {
			name = strings.ToLower(f.Name)
		}
		into[name] = true
	}
}

func pairs(node *yaml.Node) map[string]*yaml.Node {
	out := make(map[string]*yaml.Node, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		out[node.Content[i].Value] = node.Content[i+1]
	}
	return out
}

func sortedKeys(m map[string]*yaml.Node) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// decodeGenerator decodes a section into the configuration its model expects.
func (s *Scenario) decodeGenerator(sec *Section) (generator.Generator, error) {
	model, err := generator.Lookup(sec.Name, sec.Model)
	if err != nil {
		return nil, err
	}
	cfg := model.NewConfig()
	if err := s.decodeSection(sec.Name, sec.node, cfg, map[string]bool{"model": true}); err != nil {
		return nil, err
	}
	return model.Build(sec.Name, cfg)
}
