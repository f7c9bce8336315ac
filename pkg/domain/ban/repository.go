package ban

import "context"

// Repository is the durable mirror of ban records used by the query
// surface. The live enforcement state is TTL-expiring redis keys.
type Repository interface {
	Upsert(ctx context.Context, record *Record) error
	Delete(ctx context.Context, identity string) error
	List(ctx context.Context, offset, limit int) ([]*Record, error)
}
