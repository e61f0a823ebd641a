package config

const EnvPrefix = "STOREFRONT"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv    = "STOREFRONT_APP_ENV"
	EnvPort      = "STOREFRONT_APP_PORT"
	EnvDBDSN     = "STOREFRONT_DB_DSN"
	EnvDBHost    = "STOREFRONT_DB_HOST"
	EnvDBUser    = "STOREFRONT_DB_USER"
	EnvDBName    = "STOREFRONT_DB_NAME"
	EnvRedisURL  = "STOREFRONT_REDIS_URL"
	EnvJWTSecret = "STOREFRONT_JWT_SECRET"
	EnvJWTIssuer = "STOREFRONT_JWT_ISSUER"

	EnvSettlementTaxRate       = "STOREFRONT_SETTLEMENT_TAX_RATE"
	EnvSettlementShippingFee   = "STOREFRONT_SETTLEMENT_SHIPPING_FEE"
	EnvSettlementPointsPerUnit = "STOREFRONT_SETTLEMENT_POINTS_PER_UNIT"
	EnvSettlementMaxAttempts   = "STOREFRONT_SETTLEMENT_MAX_ATTEMPTS"
	EnvOrdersPendingTTL        = "STOREFRONT_ORDERS_PENDING_TTL"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
