package journey

import (
	"bytes"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	"github.com/mbd888/tmxauth/internal/nodes"
)

// Factory builds nodes from their journey-file specs.
type Factory struct {
	client nodes.RiskClient
}

// NewFactory returns a factory whose remote nodes use client.
func NewFactory(client nodes.RiskClient) *Factory {
	return &Factory{client: client}
}

// Build decodes spec.Config for spec.Type and constructs the node. Unknown
// config fields are rejected.
func (f *Factory) Build(spec NodeSpec) (nodes.Node, error) {
	switch spec.Type {
	case nodes.TypeProfiler:
		var cfg nodes.ProfilerConfig
		if err := decodeConfig(spec.Config, &cfg); err != nil {
			return nil, err
		}
		return built(nodes.NewProfilerNode(cfg))

	case nodes.TypeSessionQuery:
		var cfg nodes.SessionQueryConfig
		if err := decodeConfig(spec.Config, &cfg); err != nil {
			return nil, err
		}
		return built(nodes.NewSessionQueryNode(cfg, f.client))

	case nodes.TypePolicyScore:
		var cfg nodes.PolicyScoreConfig
		if err := decodeConfig(spec.Config, &cfg); err != nil {
			return nil, err
		}
		return built(nodes.NewPolicyScoreNode(cfg))

	case nodes.TypeReasonCode:
		var cfg nodes.ReasonCodeConfig
		if err := decodeConfig(spec.Config, &cfg); err != nil {
			return nil, err
		}
		return built(nodes.NewReasonCodeNode(cfg))

	case nodes.TypeReviewStatus:
		if err := decodeConfig(spec.Config, &struct{}{}); err != nil {
			return nil, err
		}
		return nodes.NewReviewStatusNode(), nil

	case nodes.TypeUpdateReview:
		var cfg nodes.UpdateReviewConfig
		if err := decodeConfig(spec.Config, &cfg); err != nil {
			return nil, err
		}
		return built(nodes.NewUpdateReviewNode(cfg, f.client))

	default:
		return nil, errors.Newf("journey: unknown node type %q", spec.Type)
	}
}

// built drops the typed nil a failed constructor returns so callers never
// hold a non-nil Node alongside an error.
func built[N nodes.Node](n N, err error) (nodes.Node, error) {
	if err != nil {
		return nil, err
	}
	return n, nil
}

// decodeConfig re-encodes the node so the strict decoder can reject unknown
// fields; yaml.Node.Decode has no such option.
func decodeConfig(n yaml.Node, out any) error {
	if n.Kind == 0 {
		return nil
	}
	b, err := yaml.Marshal(&n)
	if err != nil {
		return errors.Wrap(err, "journey: encode node config")
	}
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		return errors.Wrap(err, "journey: decode node config")
	}
	return nil
}
