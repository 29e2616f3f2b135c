package cache

import (
	"strconv"

	"github.com/mmcdole/catalog/internal/domain"
)

// DefaultNamespace prefixes every key the cache owns. Nothing else may write
// keys starting with it.
const DefaultNamespace = "@catalog_cache_"

// ListKey is the key for an entity type's list (namespace + "shows").
func (m *Manager) ListKey(entity domain.EntityType) string {
	return m.namespace + string(entity)
}

// ItemKey is the key for one entity (namespace + "episode_" + id).
func (m *Manager) ItemKey(entity domain.EntityType, id int) string {
	return m.namespace + entity.Singular() + "_" + strconv.Itoa(id)
}

// Namespace returns the reserved key prefix.
func (m *Manager) Namespace() string {
	return m.namespace
}
