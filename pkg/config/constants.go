package config

const (
	EnvPrefix = "STOREFRONT"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv   = "STOREFRONT_APP_ENV"
	EnvPort     = "STOREFRONT_APP_PORT"
	EnvSiteURL  = "STOREFRONT_SITE_URL"
	EnvLogLevel = "STOREFRONT_LOG_LEVEL"

	EnvDBDSN  = "STOREFRONT_DB_DSN"
	EnvDBHost = "STOREFRONT_DB_HOST"
	EnvDBUser = "STOREFRONT_DB_USER"
	EnvDBName = "STOREFRONT_DB_NAME"

	EnvRedisURL = "STOREFRONT_REDIS_URL"

	EnvJWTSecret  = "STOREFRONT_JWT_SECRET"
	EnvJWTIssuer  = "STOREFRONT_JWT_ISSUER"
	EnvJWTExpMins = "STOREFRONT_JWT_EXPIRATION_MINUTES"

	EnvStripeSecretKey      = "STOREFRONT_STRIPE_SECRET_KEY"
	EnvStripePublishableKey = "STOREFRONT_STRIPE_PUBLISHABLE_KEY"
	EnvStripeWebhookSecret  = "STOREFRONT_STRIPE_WEBHOOK_SECRET"

	EnvMailAdminRecipients = "STOREFRONT_MAIL_ADMIN_RECIPIENTS"
	EnvFreeDeliveryOver    = "STOREFRONT_PRICING_FREE_DELIVERY_OVER"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
