package config

// EnvPrefix is the envconfig prefix; explicit envconfig tags carry the full
// variable names, so the prefix stays empty.
const EnvPrefix = ""

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvDBDSN  = "CARDVAULT_DB_DSN"
	EnvDBHost = "CARDVAULT_DB_HOST"
	EnvDBUser = "CARDVAULT_DB_USER"
	EnvDBName = "CARDVAULT_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
