package main

import (
	"io/fs"
	"net"
	"os"
	"strconv"

	"datanode/internal/logging"
	"datanode/internal/model"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

const defaultConfigPath = "config.yaml"

// loadConfig 加载配置文件，未显式指定且默认文件不存在时使用默认配置
func loadConfig(configPath string, explicit bool) (*model.Config, error) {
	var config model.Config

	data, err := os.ReadFile(configPath)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return &config, nil
		}
		return nil, errors.Wrapf(err, "failed to read config file %s", configPath)
	}

	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}
	return &config, nil
}

// applyArgs 用位置参数覆盖配置：[port] [storage_dir] [datanode_id] [namenode_host] [namenode_port]
func applyArgs(config *model.Config, args []string) error {
	if len(args) > 0 {
		port, err := parsePort(args[0])
		if err != nil {
			return errors.Wrap(err, "invalid port")
		}
		config.Server.ListenAddress = net.JoinHostPort("0.0.0.0", strconv.Itoa(port))
		config.Server.AdvertiseAddress = net.JoinHostPort("localhost", strconv.Itoa(port))
	}
	if len(args) > 1 {
		config.Storage.DataRootPath = args[1]
	}
	if len(args) > 2 {
		config.Server.DatanodeId = args[2]
	}
	if len(args) > 3 {
		config.NameNode.Host = args[3]
	}
	if len(args) > 4 {
		port, err := parsePort(args[4])
		if err != nil {
			return errors.Wrap(err, "invalid namenode port")
		}
		config.NameNode.Port = port
	}
	return nil
}

func parsePort(s string) (int, error) {
	port, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.Wrapf(err, "%q is not a number", s)
	}
	if port < 1 || port > 65535 {
		return 0, errors.Newf("port %d out of range", port)
	}
	return port, nil
}

// validateConfig 验证配置的有效性并设置默认值
func validateConfig(config *model.Config) error {
	// 设置默认值
	if config.Server.ListenAddress == "" {
		config.Server.ListenAddress = "0.0.0.0:50051"
	}
	_, listenPort, err := net.SplitHostPort(config.Server.ListenAddress)
	if err != nil {
		return errors.Wrapf(err, "server.listen_address %q is invalid", config.Server.ListenAddress)
	}
	if config.Server.AdvertiseAddress == "" {
		config.Server.AdvertiseAddress = net.JoinHostPort("localhost", listenPort)
	}
	if config.Server.DatanodeId == "" {
		config.Server.DatanodeId = "datanode1"
	}
	if config.Server.MaxMessageSize == 0 {
		config.Server.MaxMessageSize = 4 * 1024 * 1024
	}

	if config.Storage.DataRootPath == "" {
		config.Storage.DataRootPath = "/tmp/datanode"
	}
	if config.Storage.CapacityBytes == 0 {
		config.Storage.CapacityBytes = model.DefaultCapacity
	}

	if config.NameNode.Host == "" {
		config.NameNode.Host = "localhost"
	}
	if config.NameNode.Port == 0 {
		config.NameNode.Port = 50070
	}
	if config.NameNode.HeartbeatInterval == 0 {
		config.NameNode.HeartbeatInterval = 5
	}
	if config.NameNode.ConnectionTimeout == 0 {
		config.NameNode.ConnectionTimeout = 5
	}
	if config.NameNode.KeepaliveTime == 0 {
		config.NameNode.KeepaliveTime = 30
	}
	if config.NameNode.KeepaliveTimeout == 0 {
		config.NameNode.KeepaliveTimeout = 5
	}
	if config.NameNode.ReconnectDelay == 0 {
		config.NameNode.ReconnectDelay = 1
	}

	if config.Registration.MaxAttempts == 0 {
		config.Registration.MaxAttempts = 10
	}
	if config.Registration.BaseDelay == 0 {
		config.Registration.BaseDelay = 1
	}
	if config.Registration.MaxDelay == 0 {
		config.Registration.MaxDelay = 30
	}

	if config.Etcd.DialTimeout == 0 {
		config.Etcd.DialTimeout = 5
	}
	if config.Etcd.ElectionPrefix == "" {
		config.Etcd.ElectionPrefix = "/griddfs/namenode/election"
	}

	if config.Logging.Level == "" {
		config.Logging.Level = "info"
	}
	if config.Logging.Output == "" {
		config.Logging.Output = "stderr"
	}
	if config.Logging.Format == "" {
		config.Logging.Format = "text"
	}

	if config.Shutdown.Timeout == 0 {
		config.Shutdown.Timeout = 10
	}
	if config.Shutdown.GracePeriod == 0 {
		config.Shutdown.GracePeriod = 5
	}

	// 校验
	if config.NameNode.Port < 1 || config.NameNode.Port > 65535 {
		return errors.Newf("namenode.port %d out of range", config.NameNode.Port)
	}
	if config.Server.MaxMessageSize < model.DefaultChunkSize {
		return errors.Newf("server.max_message_size must be at least %d", model.DefaultChunkSize)
	}
	if config.Storage.CapacityBytes < 0 {
		return errors.New("storage.capacity_bytes must not be negative")
	}
	for name, v := range map[string]int{
		"namenode.heartbeat_interval": config.NameNode.HeartbeatInterval,
		"namenode.connection_timeout": config.NameNode.ConnectionTimeout,
		"namenode.keepalive_time":     config.NameNode.KeepaliveTime,
		"namenode.keepalive_timeout":  config.NameNode.KeepaliveTimeout,
		"namenode.reconnect_delay":    config.NameNode.ReconnectDelay,
		"registration.max_attempts":   config.Registration.MaxAttempts,
		"registration.base_delay":     config.Registration.BaseDelay,
		"registration.max_delay":      config.Registration.MaxDelay,
		"etcd.dial_timeout":           config.Etcd.DialTimeout,
		"shutdown.timeout":            config.Shutdown.Timeout,
		"shutdown.grace_period":       config.Shutdown.GracePeriod,
	} {
		if v < 0 {
			return errors.Newf("%s must not be negative", name)
		}
	}
	if config.Registration.MaxDelay < config.Registration.BaseDelay {
		return errors.New("registration.max_delay must not be less than registration.base_delay")
	}
	if _, err := logging.ParseLevel(config.Logging.Level); err != nil {
		return errors.Wrap(err, "logging.level")
	}

	return nil
}
