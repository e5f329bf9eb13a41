package config

const EnvPrefix = "STOREFRONT"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	ShippingModeFlat = "flat"
	ShippingModeZone = "zone"

	CacheBackendMemory = "memory"
	CacheBackendRedis  = "redis"
)

const (
	EnvAppEnv   = "STOREFRONT_APP_ENV"
	EnvPort     = "STOREFRONT_APP_PORT"
	EnvLogLevel = "STOREFRONT_LOG_LEVEL"

	EnvDBDSN  = "STOREFRONT_DB_DSN"
	EnvDBHost = "STOREFRONT_DB_HOST"
	EnvDBUser = "STOREFRONT_DB_USER"
	EnvDBName = "STOREFRONT_DB_NAME"

	EnvRedisURL = "STOREFRONT_REDIS_URL"

	EnvJWTSecret = "STOREFRONT_JWT_SECRET"
	EnvJWTIssuer = "STOREFRONT_JWT_ISSUER"

	EnvPlatformFeeRate = "STOREFRONT_PLATFORM_FEE_RATE"
	EnvShippingMode    = "STOREFRONT_SHIPPING_MODE"
	EnvCacheBackend    = "STOREFRONT_CACHE_BACKEND"
	EnvCacheTTL        = "STOREFRONT_CACHE_TTL"

	EnvRazorpayKeyID     = "STOREFRONT_RAZORPAY_KEY_ID"
	EnvRazorpayKeySecret = "STOREFRONT_RAZORPAY_KEY_SECRET"
)

var dbEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
