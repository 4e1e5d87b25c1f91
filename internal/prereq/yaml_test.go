package prereq

import (
	"testing"

	"gopkg.in/yaml.v3"
)

func decodeYAML(t *testing.T, source string) Expr {
	t.Helper()
	var node yaml.Node
	if err := yaml.Unmarshal([]byte(source), &node); err != nil {
		t.Fatalf("unmarshal yaml: %v", err)
	}
	// yaml.Unmarshal wraps the document in a document node.
	content := &node
	if node.Kind == yaml.DocumentNode && len(node.Content) == 1 {
		content = node.Content[0]
	}
	expr, err := DecodeYAML(content)
	if err != nil {
		t.Fatalf("decode yaml: %v", err)
	}
	return expr
}

func TestDecodeYAMLLeaves(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   Predicate
	}{
		{"owns", "owns: talent-a", Predicate{Kind: KindOwnsEntity, Target: "talent-a"}},
		{"skill", "skill: alchemy", Predicate{Kind: KindHasSkill, Target: "alchemy"}},
		{"tree", "tree: shadow-arts", Predicate{Kind: KindOwnsFromCollection, Target: "shadow-arts"}},
		{"archetype", "archetype: warden", Predicate{Kind: KindArchetypeIs, Target: "warden"}},
		{"level", "level: 3", Predicate{Kind: KindLevelAtLeast, Threshold: 3}},
		{"ability", "ability: {name: str, min: 13}", Predicate{Kind: KindAbilityAtLeast, Target: "str", Threshold: 13}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expr := decodeYAML(t, tt.source)
			leaf, ok := expr.(Leaf)
			if !ok {
				t.Fatalf("expected leaf, got %T", expr)
			}
			if leaf.Predicate != tt.want {
				t.Fatalf("decode %q = %+v, want %+v", tt.source, leaf.Predicate, tt.want)
			}
		})
	}
}

func TestDecodeYAMLCombinators(t *testing.T) {
	source := `
all:
  - owns: talent-a
  - level: 3
  - any:
      - skill: alchemy
      - not: {owns: cursed-brand}
`
	expr := decodeYAML(t, source)
	and, ok := expr.(And)
	if !ok {
		t.Fatalf("expected And, got %T", expr)
	}
	if len(and.Operands) != 3 {
		t.Fatalf("expected 3 operands, got %d", len(and.Operands))
	}
	or, ok := and.Operands[2].(Or)
	if !ok {
		t.Fatalf("expected Or as third operand, got %T", and.Operands[2])
	}
	if _, ok := or.Operands[1].(Not); !ok {
		t.Fatalf("expected Not as second or-operand, got %T", or.Operands[1])
	}

	leaves := Leaves(expr)
	wantKinds := []Kind{KindOwnsEntity, KindLevelAtLeast, KindHasSkill, KindOwnsEntity}
	if len(leaves) != len(wantKinds) {
		t.Fatalf("expected %d leaves, got %d", len(wantKinds), len(leaves))
	}
	for i, kind := range wantKinds {
		if leaves[i].Kind != kind {
			t.Fatalf("leaf %d kind = %s, want %s", i, leaves[i].Kind, kind)
		}
	}
}

func TestDecodeYAMLRejectsAmbiguousNodes(t *testing.T) {
	var node yaml.Node
	if err := yaml.Unmarshal([]byte("owns: talent-a\nlevel: 3"), &node); err != nil {
		t.Fatalf("unmarshal yaml: %v", err)
	}
	if _, err := DecodeYAML(node.Content[0]); err == nil {
		t.Fatal("expected error for node setting two fields")
	}
}

func TestDecodeYAMLNilNode(t *testing.T) {
	expr, err := DecodeYAML(nil)
	if err != nil {
		t.Fatalf("decode nil: %v", err)
	}
	if expr != nil {
		t.Fatalf("expected nil expression, got %T", expr)
	}
}
