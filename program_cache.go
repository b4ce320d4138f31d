package state

// ProgramCache stores compiled derived-expression programs keyed by
// expression strings. Instances sharing a cache share compilations.
type ProgramCache interface {
	Get(key string) (any, bool)
	Set(key string, value any)
}
