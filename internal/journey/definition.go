package journey

import (
	"bytes"
	"os"
	"slices"
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/mbd888/tmxauth/internal/nodes"
	"github.com/mbd888/tmxauth/internal/state"
)

// File is the top level of a journeys YAML file.
type File struct {
	Journeys []Definition `yaml:"journeys" validate:"required,min=1,dive"`
}

// Definition describes one journey as written by an operator.
type Definition struct {
	Name        string              `yaml:"name" validate:"required,max=64"`
	Description string              `yaml:"description"`
	Start       string              `yaml:"start" validate:"required"`
	Nodes       map[string]NodeSpec `yaml:"nodes" validate:"required,min=1,dive"`
}

// NodeSpec is one node of a journey: its type, its type-specific config, and
// where each of its outcomes leads.
type NodeSpec struct {
	Type     string            `yaml:"type" validate:"required"`
	Config   yaml.Node         `yaml:"config"`
	Outcomes map[string]string `yaml:"outcomes"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Journey is a compiled, validated definition.
type Journey struct {
	Name        string
	Description string
	Start       string
	steps       map[string]*step
}

type step struct {
	id   string
	node nodes.Node
	next map[string]string
}

// LoadFile reads, env-expands and compiles every journey in path.
func LoadFile(path string, factory *Factory) ([]*Journey, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- operator supplied config path
	if err != nil {
		return nil, errors.Wrapf(err, "journey: read %s", path)
	}
	return Parse(data, factory)
}

// Parse compiles journeys from YAML. ${VAR} references are expanded from the
// environment first so secrets stay out of the file.
func Parse(data []byte, factory *Factory) ([]*Journey, error) {
	expanded := os.ExpandEnv(string(data))

	var file File
	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, errors.Wrap(err, "journey: parse definitions")
	}
	if err := validate.Struct(file); err != nil {
		return nil, errors.Wrap(err, "journey: invalid definitions")
	}

	seen := make(map[string]bool, len(file.Journeys))
	out := make([]*Journey, 0, len(file.Journeys))
	for _, def := range file.Journeys {
		if seen[def.Name] {
			return nil, errors.Newf("journey: %q defined twice", def.Name)
		}
		seen[def.Name] = true

		j, err := Compile(def, factory)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, nil
}

// Compile builds the nodes of def and checks its wiring: the start node
// exists, every outcome of every node is mapped exactly to a node or a
// terminal, and every required shared-state key has a producer.
func Compile(def Definition, factory *Factory) (*Journey, error) {
	if _, ok := def.Nodes[def.Start]; !ok {
		return nil, errors.Newf("journey %s: start node %q not defined", def.Name, def.Start)
	}

	j := &Journey{
		Name:        def.Name,
		Description: def.Description,
		Start:       def.Start,
		steps:       make(map[string]*step, len(def.Nodes)),
	}
	produced := map[state.Key]bool{}

	for _, id := range sortedKeys(def.Nodes) {
		spec := def.Nodes[id]
		if id == TerminalSuccess || id == TerminalFailure {
			return nil, errors.Newf("journey %s: node id %q is reserved", def.Name, id)
		}

		node, err := factory.Build(spec)
		if err != nil {
			return nil, errors.Wrapf(err, "journey %s: node %s", def.Name, id)
		}

		outcomes := node.Outcomes()
		for _, outcome := range outcomes {
			if _, ok := spec.Outcomes[outcome]; !ok {
				return nil, errors.Newf("journey %s: node %s: outcome %q is not mapped", def.Name, id, outcome)
			}
		}
		for outcome, target := range spec.Outcomes {
			if !slices.Contains(outcomes, outcome) {
				return nil, errors.Newf("journey %s: node %s: %s has no outcome %q", def.Name, id, spec.Type, outcome)
			}
			if _, ok := def.Nodes[target]; !ok && target != TerminalSuccess && target != TerminalFailure {
				return nil, errors.Newf("journey %s: node %s: outcome %q leads to unknown node %q", def.Name, id, outcome, target)
			}
		}

		for _, key := range node.Schema().Produces {
			produced[key] = true
		}
		j.steps[id] = &step{id: id, node: node, next: spec.Outcomes}
	}

	for _, id := range sortedKeys(def.Nodes) {
		for _, key := range j.steps[id].node.Schema().Requires {
			if !produced[key] {
				return nil, errors.Newf("journey %s: node %s requires %s but no node produces it", def.Name, id, key)
			}
		}
	}
	return j, nil
}

// NodeInfo describes a compiled node.
type NodeInfo struct {
	ID       string            `json:"id"`
	Type     string            `json:"type"`
	Outcomes map[string]string `json:"outcomes"`
	Schema   nodes.Schema      `json:"schema"`
}

// Nodes describes the journey's nodes, sorted by id.
func (j *Journey) Nodes() []NodeInfo {
	out := make([]NodeInfo, 0, len(j.steps))
	for _, id := range sortedKeys(j.steps) {
		s := j.steps[id]
		next := make(map[string]string, len(s.next))
		for k, v := range s.next {
			next[k] = v
		}
		out = append(out, NodeInfo{ID: id, Type: s.node.Type(), Outcomes: next, Schema: s.node.Schema()})
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
