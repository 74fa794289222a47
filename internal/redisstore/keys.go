package redisstore

// Redis key naming conventions. All keys are prefixed with "chorus:" by
// default to avoid collisions with other tenants of the same Redis.

const defaultPrefix = "chorus:"

const (
	fieldValue    = "v"
	fieldRevision = "r"
)

// docKey returns the hash key of a document: chorus:{namespace}:doc:{key}
func (s *Store) docKey(key string) string {
	return s.prefix + s.namespace + ":doc:" + key
}

// indexKey is the Set tracking all keys of the namespace: chorus:{namespace}:keys
func (s *Store) indexKey() string {
	return s.prefix + s.namespace + ":keys"
}

// revisionKey is the counter handing out revisions: chorus:{namespace}:rev
func (s *Store) revisionKey() string {
	return s.prefix + s.namespace + ":rev"
}
