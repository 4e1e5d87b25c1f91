// Package registry builds the normalized, queryable indices every other
// component reads. The registry is built once at startup from raw catalog
// content, validated, then frozen: all queries are precomputed-map lookups
// that are safe for unlimited concurrent readers.
package registry

import (
	"fmt"
	"log"
	"sort"

	"github.com/louisbranch/advancement-engine/internal/character"
	"github.com/louisbranch/advancement-engine/internal/content"
	apperrors "github.com/louisbranch/advancement-engine/internal/platform/errors"
	"github.com/louisbranch/advancement-engine/internal/prereq"
)

// maxOwnershipDepth bounds the ownership walk so a cyclic chain is reported
// as a load error instead of looping forever.
const maxOwnershipDepth = 16

// Entity is a normalized acquirable capability.
type Entity struct {
	ID           string
	DisplayName  string
	Kind         character.Kind
	OwnerID      string // empty when unowned
	Prerequisite prereq.Expr
}

// Archetype is a normalized class-like grouping with its accessible
// collections and weighted signal set.
type Archetype struct {
	ID            string
	DisplayName   string
	CollectionIDs []string           // sorted
	Signals       map[string]float64 // entity id -> weight
}

// Registry holds the frozen indices. The zero value is unusable; always
// construct via Build.
type Registry struct {
	entities               map[string]Entity
	owners                 map[string]string
	children               map[string][]string
	archetypes             map[string]Archetype
	archetypesByCollection map[string][]string
	entityIDs              []string
	archetypeIDs           []string
}

// Build normalizes raw catalog content into a frozen registry. It fails
// when an entity references an unknown owner, an id is declared twice, or
// an ownership chain cycles. A malformed prerequisite is not fatal: the
// entity is loaded as always legal with a logged warning.
func Build(catalog content.Catalog) (*Registry, error) {
	reg := &Registry{
		entities:               make(map[string]Entity, len(catalog.Entities)),
		owners:                 make(map[string]string),
		children:               make(map[string][]string),
		archetypes:             make(map[string]Archetype, len(catalog.Archetypes)),
		archetypesByCollection: make(map[string][]string),
	}

	for _, raw := range catalog.Entities {
		if _, exists := reg.entities[raw.ID]; exists {
			return nil, apperrors.WithMetadata(apperrors.CodeContentDuplicateEntity,
				fmt.Sprintf("entity %s declared more than once", raw.ID),
				map[string]string{"entity_id": raw.ID})
		}
		kind, ok := character.ParseKind(raw.Kind)
		if !ok {
			return nil, apperrors.WithMetadata(apperrors.CodeMalformedContent,
				fmt.Sprintf("entity %s has unknown kind %q", raw.ID, raw.Kind),
				map[string]string{"entity_id": raw.ID, "kind": raw.Kind})
		}
		reg.entities[raw.ID] = Entity{
			ID:           raw.ID,
			DisplayName:  raw.DisplayName,
			Kind:         kind,
			OwnerID:      raw.OwnerID,
			Prerequisite: parsePrerequisite(raw),
		}
		reg.entityIDs = append(reg.entityIDs, raw.ID)
	}
	sort.Strings(reg.entityIDs)

	// Ownership edges resolve by id against the loaded entity set; display
	// names never participate in ownership resolution.
	for _, id := range reg.entityIDs {
		entity := reg.entities[id]
		if entity.OwnerID == "" {
			continue
		}
		if _, ok := reg.entities[entity.OwnerID]; !ok {
			return nil, apperrors.WithMetadata(apperrors.CodeContentUnknownOwner,
				fmt.Sprintf("entity %s references unknown owner %s", entity.ID, entity.OwnerID),
				map[string]string{"entity_id": entity.ID, "owner_id": entity.OwnerID})
		}
		reg.owners[entity.ID] = entity.OwnerID
		reg.children[entity.OwnerID] = append(reg.children[entity.OwnerID], entity.ID)
	}
	for ownerID := range reg.children {
		sort.Strings(reg.children[ownerID])
	}

	for _, id := range reg.entityIDs {
		if err := reg.checkOwnershipChain(id); err != nil {
			return nil, err
		}
	}

	for _, raw := range catalog.Archetypes {
		if _, exists := reg.archetypes[raw.ID]; exists {
			return nil, apperrors.WithMetadata(apperrors.CodeContentDuplicateEntity,
				fmt.Sprintf("archetype %s declared more than once", raw.ID),
				map[string]string{"archetype_id": raw.ID})
		}
		collections := make([]string, 0, len(raw.Collections))
		for _, collectionID := range raw.Collections {
			if _, ok := reg.entities[collectionID]; !ok {
				return nil, apperrors.WithMetadata(apperrors.CodeContentUnknownOwner,
					fmt.Sprintf("archetype %s references unknown collection %s", raw.ID, collectionID),
					map[string]string{"archetype_id": raw.ID, "collection_id": collectionID})
			}
			collections = append(collections, collectionID)
		}
		sort.Strings(collections)

		signals := make(map[string]float64, len(raw.Signals))
		for signalID, weight := range raw.Signals {
			if _, ok := reg.entities[signalID]; !ok {
				log.Printf("registry build: archetype %s signal %s does not match a loaded entity, keeping as opaque signal", raw.ID, signalID)
			}
			signals[signalID] = weight
		}

		reg.archetypes[raw.ID] = Archetype{
			ID:            raw.ID,
			DisplayName:   raw.DisplayName,
			CollectionIDs: collections,
			Signals:       signals,
		}
		reg.archetypeIDs = append(reg.archetypeIDs, raw.ID)
		for _, collectionID := range collections {
			reg.archetypesByCollection[collectionID] = append(reg.archetypesByCollection[collectionID], raw.ID)
		}
	}
	sort.Strings(reg.archetypeIDs)
	for collectionID := range reg.archetypesByCollection {
		sort.Strings(reg.archetypesByCollection[collectionID])
	}

	return reg, nil
}

// parsePrerequisite normalizes either raw prerequisite form into an
// expression tree. Malformed content downgrades to always legal.
func parsePrerequisite(raw content.RawEntity) prereq.Expr {
	if raw.Prereq != nil {
		expr, err := prereq.DecodeYAML(raw.Prereq)
		if err != nil {
			log.Printf("registry build: entity %s has malformed structured prerequisite, treating as always legal: %v", raw.ID, err)
			return nil
		}
		return expr
	}
	expr, err := prereq.Parse(raw.Requires)
	if err != nil {
		log.Printf("registry build: entity %s has malformed prerequisite text, treating as always legal: %v", raw.ID, err)
		return nil
	}
	return expr
}

// checkOwnershipChain walks owner edges upward, bounded by
// maxOwnershipDepth.
func (r *Registry) checkOwnershipChain(entityID string) error {
	current := entityID
	for depth := 0; depth <= maxOwnershipDepth; depth++ {
		ownerID, ok := r.owners[current]
		if !ok {
			return nil
		}
		current = ownerID
	}
	return apperrors.WithMetadata(apperrors.CodeContentOwnershipCycle,
		fmt.Sprintf("ownership chain from %s exceeds depth %d, cycle suspected", entityID, maxOwnershipDepth),
		map[string]string{"entity_id": entityID})
}

// EntityByID returns the entity with the given id.
func (r *Registry) EntityByID(id string) (Entity, bool) {
	entity, ok := r.entities[id]
	return entity, ok
}

// OwnerOf returns the owning collection of an entity, false when unowned or
// unknown.
func (r *Registry) OwnerOf(entityID string) (string, bool) {
	ownerID, ok := r.owners[entityID]
	return ownerID, ok
}

// ChildrenOf returns the sorted ids of entities owned by the collection.
func (r *Registry) ChildrenOf(ownerID string) []string {
	children := r.children[ownerID]
	out := make([]string, len(children))
	copy(out, children)
	return out
}

// EntityIDs returns every entity id sorted ascending.
func (r *Registry) EntityIDs() []string {
	out := make([]string, len(r.entityIDs))
	copy(out, r.entityIDs)
	return out
}

// ArchetypeByID returns the archetype with the given id.
func (r *Registry) ArchetypeByID(id string) (Archetype, bool) {
	archetype, ok := r.archetypes[id]
	return archetype, ok
}

// ArchetypeIDs returns every archetype id sorted ascending.
func (r *Registry) ArchetypeIDs() []string {
	out := make([]string, len(r.archetypeIDs))
	copy(out, r.archetypeIDs)
	return out
}

// ArchetypeSignals returns a copy of the archetype's weighted signal set,
// nil when the archetype is unknown or declares no signals.
func (r *Registry) ArchetypeSignals(archetypeID string) map[string]float64 {
	archetype, ok := r.archetypes[archetypeID]
	if !ok || len(archetype.Signals) == 0 {
		return nil
	}
	out := make(map[string]float64, len(archetype.Signals))
	for signalID, weight := range archetype.Signals {
		out[signalID] = weight
	}
	return out
}

// CollectionsOf returns the sorted collection ids an archetype may access.
func (r *Registry) CollectionsOf(archetypeID string) []string {
	archetype, ok := r.archetypes[archetypeID]
	if !ok {
		return nil
	}
	out := make([]string, len(archetype.CollectionIDs))
	copy(out, archetype.CollectionIDs)
	return out
}

// ArchetypesWithCollection returns the sorted archetype ids that may access
// the collection.
func (r *Registry) ArchetypesWithCollection(collectionID string) []string {
	archetypeIDs := r.archetypesByCollection[collectionID]
	out := make([]string, len(archetypeIDs))
	copy(out, archetypeIDs)
	return out
}
