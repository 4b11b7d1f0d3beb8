package config

// Storage drivers accepted by storage.driver.
const (
	StorageDriverMemory   = "memory"
	StorageDriverSQLite   = "sqlite"
	StorageDriverPostgres = "postgres"
)

const (
	keyStorageDriver = "storage.driver"
	keyStorageDSN    = "storage.dsn"
	keyRedisURL      = "redis.url"
	keyRedisPrefix   = "redis.prefix"
	keyAMQPURL       = "amqp.url"
	keyAMQPExchange  = "amqp.exchange"
)

type StorageConfig interface {
	GetStorageDriver() string
	GetStorageDSN() string
	GetRedisURL() string
	GetRedisPrefix() string
	GetAMQPURL() string
	GetAMQPExchange() string
}

func (c *mainConfig) GetStorageDriver() string {
	return c.v.GetString(keyStorageDriver)
}

// GetStorageDSN is the file path (sqlite) or connection string (postgres).
func (c *mainConfig) GetStorageDSN() string {
	return c.v.GetString(keyStorageDSN)
}

// GetRedisURL, when set, moves auth states to Redis regardless of the storage driver.
func (c *mainConfig) GetRedisURL() string {
	return c.v.GetString(keyRedisURL)
}

func (c *mainConfig) GetRedisPrefix() string {
	return c.v.GetString(keyRedisPrefix)
}

// GetAMQPURL, when set, also publishes audit events to RabbitMQ.
func (c *mainConfig) GetAMQPURL() string {
	return c.v.GetString(keyAMQPURL)
}

func (c *mainConfig) GetAMQPExchange() string {
	return c.v.GetString(keyAMQPExchange)
}
