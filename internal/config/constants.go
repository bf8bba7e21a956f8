package config

// Supported database drivers
const (
	DriverOracle = "oracle"
	DriverSQLite = "sqlite"
)

const (
	// Default values
	DefaultDBDriver           = DriverOracle
	DefaultDBHost             = "dbserver"
	DefaultDBPort             = 1521
	DefaultDBService          = "ORCL"
	DefaultDBUser             = "forms"
	DefaultStateFile          = "./state.json"
	DefaultOutputDir          = "./export"
	DefaultFormat             = "csv"
	DefaultFlushEvery         = 1000
	DefaultFileAccessBase     = "/api"
	DefaultConnectTimeoutSecs = 30
	DefaultQueryTimeoutSecs   = 300 // 5 minutes

	// S3 defaults
	DefaultS3PartSize    = 5 * 1024 * 1024 // 5MB
	DefaultS3Concurrency = 5
)

const (
	// Environment variable names
	EnvDBPassword = "FORMEXPORT_DB_PASSWORD"
	EnvPrefix     = "FORMEXPORT"

	// S3 environment variable names (formexport-specific)
	// Note: AWS credentials and region use standard AWS env vars (AWS_ACCESS_KEY_ID,
	// AWS_REGION, etc.) which are automatically picked up by the AWS SDK.
	EnvS3Bucket   = "FORMEXPORT_S3_BUCKET"
	EnvS3Prefix   = "FORMEXPORT_S3_PREFIX"
	EnvS3Endpoint = "FORMEXPORT_S3_ENDPOINT"
)
