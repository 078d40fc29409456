package stage

import (
	"database/sql"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"flattener/internal/constants"
)

// Stores carries the datastore clients a repository may be built on.
type Stores struct {
	Postgres *sql.DB
	Redis    *redis.Client
	MongoDB  *mongo.Database
}

// NewRepository returns the repository for source, or nil for static config.
func NewRepository(source string, stores Stores) (Repository, error) {
	switch source {
	case constants.TransformSourceStatic, "":
		return nil, nil
	case constants.TransformSourcePostgres:
		if stores.Postgres == nil {
			return nil, fmt.Errorf("transform source %s requires a PostgreSQL connection", source)
		}
		return NewPostgresRepository(stores.Postgres), nil
	case constants.TransformSourceRedis:
		if stores.Redis == nil {
			return nil, fmt.Errorf("transform source %s requires a Redis connection", source)
		}
		return NewRedisRepository(stores.Redis), nil
	case constants.TransformSourceMongoDB:
		if stores.MongoDB == nil {
			return nil, fmt.Errorf("transform source %s requires a MongoDB connection", source)
		}
		return NewMongoRepository(stores.MongoDB), nil
	default:
		return nil, fmt.Errorf("unknown transform source: %s", source)
	}
}
