package types

// JSONMap is a free-form details payload persisted as jsonb.
type JSONMap map[string]any
