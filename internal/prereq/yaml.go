package prereq

import (
	"fmt"

	"gopkg.in/yaml.v3"

	apperrors "github.com/louisbranch/advancement-engine/internal/platform/errors"
)

// exprYAML is the structured YAML form of a prerequisite expression. Exactly
// one field may be set per node.
type exprYAML struct {
	All       []exprYAML   `yaml:"all"`
	Any       []exprYAML   `yaml:"any"`
	Not       *exprYAML    `yaml:"not"`
	Owns      string       `yaml:"owns"`
	Skill     string       `yaml:"skill"`
	Tree      string       `yaml:"tree"`
	Archetype string       `yaml:"archetype"`
	Level     int          `yaml:"level"`
	Ability   *abilityYAML `yaml:"ability"`
}

type abilityYAML struct {
	Name string `yaml:"name"`
	Min  int    `yaml:"min"`
}

// DecodeYAML converts a structured YAML node into an expression tree. A nil
// or empty node yields a nil (always legal) expression.
func DecodeYAML(node *yaml.Node) (Expr, error) {
	if node == nil || node.Kind == 0 {
		return nil, nil
	}
	var raw exprYAML
	if err := node.Decode(&raw); err != nil {
		return nil, apperrors.Wrap(apperrors.CodePrereqInvalidExpression, "decode prerequisite yaml", err)
	}
	return exprFromYAML(raw)
}

func exprFromYAML(raw exprYAML) (Expr, error) {
	set := 0
	if len(raw.All) > 0 {
		set++
	}
	if len(raw.Any) > 0 {
		set++
	}
	if raw.Not != nil {
		set++
	}
	if raw.Owns != "" {
		set++
	}
	if raw.Skill != "" {
		set++
	}
	if raw.Tree != "" {
		set++
	}
	if raw.Archetype != "" {
		set++
	}
	if raw.Level > 0 {
		set++
	}
	if raw.Ability != nil {
		set++
	}
	if set == 0 {
		return nil, apperrors.New(apperrors.CodePrereqInvalidExpression, "empty prerequisite node")
	}
	if set > 1 {
		return nil, apperrors.New(apperrors.CodePrereqInvalidExpression,
			"prerequisite node must set exactly one of all/any/not/owns/skill/tree/archetype/level/ability")
	}

	switch {
	case len(raw.All) > 0:
		operands, err := exprListFromYAML(raw.All)
		if err != nil {
			return nil, err
		}
		return And{Operands: operands}, nil
	case len(raw.Any) > 0:
		operands, err := exprListFromYAML(raw.Any)
		if err != nil {
			return nil, err
		}
		return Or{Operands: operands}, nil
	case raw.Not != nil:
		operand, err := exprFromYAML(*raw.Not)
		if err != nil {
			return nil, err
		}
		return Not{Operand: operand}, nil
	case raw.Owns != "":
		return Leaf{Predicate: Predicate{Kind: KindOwnsEntity, Target: raw.Owns}}, nil
	case raw.Skill != "":
		return Leaf{Predicate: Predicate{Kind: KindHasSkill, Target: raw.Skill}}, nil
	case raw.Tree != "":
		return Leaf{Predicate: Predicate{Kind: KindOwnsFromCollection, Target: raw.Tree}}, nil
	case raw.Archetype != "":
		return Leaf{Predicate: Predicate{Kind: KindArchetypeIs, Target: raw.Archetype}}, nil
	case raw.Level > 0:
		return Leaf{Predicate: Predicate{Kind: KindLevelAtLeast, Threshold: raw.Level}}, nil
	case raw.Ability != nil:
		if raw.Ability.Name == "" {
			return nil, apperrors.New(apperrors.CodePrereqInvalidExpression, "ability predicate requires a name")
		}
		return Leaf{Predicate: Predicate{
			Kind:      KindAbilityAtLeast,
			Target:    raw.Ability.Name,
			Threshold: raw.Ability.Min,
		}}, nil
	}
	return nil, apperrors.New(apperrors.CodePrereqInvalidExpression, "unreachable prerequisite node")
}

func exprListFromYAML(raws []exprYAML) ([]Expr, error) {
	operands := make([]Expr, 0, len(raws))
	for i, raw := range raws {
		operand, err := exprFromYAML(raw)
		if err != nil {
			return nil, fmt.Errorf("operand %d: %w", i, err)
		}
		operands = append(operands, operand)
	}
	return operands, nil
}
