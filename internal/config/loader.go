package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// flagKeys maps command-line flag names to configuration keys
var flagKeys = []struct {
	name string
	key  string
}{
	{"db-driver", "db_driver"},
	{"db-dsn", "db_dsn"},
	{"db-host", "db_host"},
	{"db-port", "db_port"},
	{"db-service", "db_service"},
	{"db-user", "db_user"},
	{"storage-host", "storage_host"},
	{"storage-container", "storage_container"},
	{"file-access-base", "file_access_base"},
	{"output-dir", "output_dir"},
	{"format", "format"},
	{"flush-every", "flush_every"},
	{"columns-file", "columns_file"},
	{"strict-names", "strict_names"},
	{"state-file", "state_file"},
	{"metrics-addr", "metrics_addr"},
	{"verbose", "verbose"},
	{"log-level", "log_level"},
	{"log-file", "log_file"},
	{"connect-timeout", "connect_timeout"},
	{"query-timeout", "query_timeout"},
	{"s3-bucket", "s3_bucket"},
	{"s3-prefix", "s3_prefix"},
	{"s3-endpoint", "s3_endpoint"},
	{"s3-region", "s3_region"},
}

// FromCommand loads configuration from cobra command flags, environment
// variables and an optional config file given with --config.
// Precedence: flags, environment, config file, defaults.
func FromCommand(cmd *cobra.Command) (*Config, error) {
	v := viper.New()

	// Bind flags to viper
	for _, f := range flagKeys {
		flag := cmd.Flags().Lookup(f.name)
		if flag != nil {
			_ = v.BindPFlag(f.key, flag)
		}
	}

	// Enable environment variable reading
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("db_password", EnvDBPassword)
	_ = v.BindEnv("s3_bucket", EnvS3Bucket)
	_ = v.BindEnv("s3_prefix", EnvS3Prefix)
	_ = v.BindEnv("s3_endpoint", EnvS3Endpoint)
	// AutomaticEnv only resolves keys viper already knows about
	for _, key := range []string{"s3_access_key", "s3_secret_key", "s3_session_token"} {
		_ = v.BindEnv(key)
	}

	setDefaults(v)

	if flag := cmd.Flags().Lookup("config"); flag != nil && flag.Value.String() != "" {
		v.SetConfigFile(flag.Value.String())
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Unmarshal to config
	result := &Config{}
	if err := v.Unmarshal(result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Set durations from duration flags
	result.ConnectTimeout = v.GetDuration("connect_timeout")
	result.QueryTimeout = v.GetDuration("query_timeout")

	return result, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("db_driver", DefaultDBDriver)
	v.SetDefault("db_dsn", "")
	v.SetDefault("db_host", DefaultDBHost)
	v.SetDefault("db_port", DefaultDBPort)
	v.SetDefault("db_service", DefaultDBService)
	v.SetDefault("db_user", DefaultDBUser)
	v.SetDefault("storage_host", "")
	v.SetDefault("storage_container", "")
	v.SetDefault("file_access_base", DefaultFileAccessBase)
	v.SetDefault("output_dir", DefaultOutputDir)
	v.SetDefault("format", DefaultFormat)
	v.SetDefault("flush_every", DefaultFlushEvery)
	v.SetDefault("columns_file", "")
	v.SetDefault("strict_names", false)
	v.SetDefault("state_file", DefaultStateFile)
	v.SetDefault("metrics_addr", "")
	v.SetDefault("verbose", false)
	v.SetDefault("connect_timeout", DefaultConnectTimeoutSecs*time.Second)
	v.SetDefault("query_timeout", DefaultQueryTimeoutSecs*time.Second)
}
