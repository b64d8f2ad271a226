package config

import (
	"encoding/json"
	"net"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/pg-sharding/partmig/pkg/compress"
	"github.com/pg-sharding/partmig/pkg/migrlog"
	"github.com/pg-sharding/partmig/pkg/models/hashfunction"
	"github.com/pg-sharding/partmig/pkg/models/migrerror"
)

const (
	QdbTypeMem  = "mem"
	QdbTypeEtcd = "etcd"
)

var cfgMember = Default()

type Member struct {
	LogLevel  string `json:"log_level" toml:"log_level" yaml:"log_level"`
	LogFile   string `json:"log_file" toml:"log_file" yaml:"log_file"`
	PrettyLog bool   `json:"pretty_log" toml:"pretty_log" yaml:"pretty_log"`

	Host      string `json:"host" toml:"host" yaml:"host"`
	Port      int32  `json:"port" toml:"port" yaml:"port"`
	ReusePort bool   `json:"reuse_port" toml:"reuse_port" yaml:"reuse_port"`

	QdbType       string `json:"qdb_type" toml:"qdb_type" yaml:"qdb_type"`
	QdbAddr       string `json:"qdb_addr" toml:"qdb_addr" yaml:"qdb_addr"`
	QdbBackupPath string `json:"qdb_backup_path" toml:"qdb_backup_path" yaml:"qdb_backup_path"`

	ExecutorStripes   int `json:"executor_stripes" toml:"executor_stripes" yaml:"executor_stripes"`
	ExecutorQueueSize int `json:"executor_queue_size" toml:"executor_queue_size" yaml:"executor_queue_size"`

	CompressionLevel  int           `json:"compression_level" toml:"compression_level" yaml:"compression_level"`
	HashFunction      string        `json:"hash_function" toml:"hash_function" yaml:"hash_function"`
	PartitionCount    int32         `json:"partition_count" toml:"partition_count" yaml:"partition_count"`
	InvocationTimeout time.Duration `json:"invocation_timeout" toml:"invocation_timeout" yaml:"invocation_timeout"`

	MetricsAddr   string   `json:"metrics_addr" toml:"metrics_addr" yaml:"metrics_addr"`
	TimeQuantiles []string `json:"time_quantiles" toml:"time_quantiles" yaml:"time_quantiles"`

	Daemonize bool   `json:"daemonize" toml:"daemonize" yaml:"daemonize"`
	PidFile   string `json:"pid_file" toml:"pid_file" yaml:"pid_file"`
}

// Default returns the configuration a member runs with when no file sets a field.
func Default() Member {
	return Member{
		LogLevel:          "info",
		Host:              "localhost",
		Port:              5701,
		QdbType:           QdbTypeMem,
		ExecutorStripes:   runtime.NumCPU(),
		ExecutorQueueSize: 1024,
		CompressionLevel:  compress.DefaultCompression,
		HashFunction:      "murmur",
		PartitionCount:    271,
		InvocationTimeout: 30 * time.Second,
		TimeQuantiles:     []string{"0.5", "0.99"},
		PidFile:           "/var/run/partmig/member.pid",
	}
}

// Address is the host:port the member listens on.
func (m *Member) Address() string {
	return net.JoinHostPort(m.Host, strconv.Itoa(int(m.Port)))
}

func (m *Member) Validate() error {
	if m.Port < 0 || m.Port > 65535 {
		return migrerror.Newf(migrerror.MIG_INVALID_REQUEST, "invalid port %d", m.Port)
	}
	switch m.QdbType {
	case QdbTypeMem, QdbTypeEtcd:
	default:
		return migrerror.Newf(migrerror.MIG_INVALID_REQUEST, "unknown qdb type %q", m.QdbType)
	}
	if m.QdbType == QdbTypeEtcd && m.QdbAddr == "" {
		return migrerror.New(migrerror.MIG_INVALID_REQUEST, "qdb_addr is required for etcd qdb")
	}
	if m.ExecutorStripes <= 0 {
		return migrerror.Newf(migrerror.MIG_INVALID_REQUEST, "executor_stripes must be positive, got %d", m.ExecutorStripes)
	}
	if m.CompressionLevel < compress.DefaultCompression || m.CompressionLevel > compress.BestCompression {
		return migrerror.Newf(migrerror.MIG_INVALID_REQUEST, "compression_level must be within [%d, %d], got %d",
			compress.DefaultCompression, compress.BestCompression, m.CompressionLevel)
	}
	if _, err := hashfunction.HashFunctionByName(m.HashFunction); err != nil {
		return migrerror.Newf(migrerror.MIG_INVALID_REQUEST, "%v", err)
	}
	if m.PartitionCount <= 0 {
		return migrerror.Newf(migrerror.MIG_INVALID_REQUEST, "partition_count must be positive, got %d", m.PartitionCount)
	}
	return nil
}

// LoadMemberCfg loads the member configuration from cfgPath on top of the
// defaults and returns it rendered as JSON.
func LoadMemberCfg(cfgPath string) (string, error) {
	mcfg := Default()

	file, err := os.Open(cfgPath)
	if err != nil {
		return "", err
	}
	defer func(file *os.File) {
		if err := file.Close(); err != nil {
			migrlog.Zero.Error().Err(err).Msg("failed to close config file")
		}
	}(file)

	if err := initConfig(file, &mcfg); err != nil {
		return "", err
	}
	if err := mcfg.Validate(); err != nil {
		return "", err
	}
	cfgMember = mcfg

	configBytes, err := json.MarshalIndent(&cfgMember, "", "  ")
	if err != nil {
		return "", err
	}
	return string(configBytes), nil
}

// MemberConfig returns a pointer to the loaded member configuration.
func MemberConfig() *Member {
	return &cfgMember
}
