// Package config loads gatewayd's configuration via viper, reading
// FISCALGW_* environment variables and an optional config file, the way
// keskad-loco wires viper for its command-station daemon.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"fiscalgw/internal/mqttbridge"
)

// Config is the process-wide configuration gatewayd needs to start
// (spec.md §6 "Environment configuration").
type Config struct {
	Host string
	Port int

	DBPath string

	JobPollInterval time.Duration
	JobTimeout      time.Duration
	MaxRetries      int
	DryRun          bool

	MQTT mqttbridge.Config
}

// Load builds a Config from defaults, an optional config file at
// configPath, and FISCALGW_*-prefixed environment variables, in that
// precedence order (lowest to highest).
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("FISCALGW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", configPath, err)
		}
	}

	cfg := &Config{
		Host:            v.GetString("host"),
		Port:            v.GetInt("port"),
		DBPath:          v.GetString("db_path"),
		JobPollInterval: v.GetDuration("job.poll_interval"),
		JobTimeout:      v.GetDuration("job.timeout"),
		MaxRetries:      v.GetInt("job.max_retries"),
		DryRun:          v.GetBool("dry_run"),
		MQTT: mqttbridge.Config{
			Host:           v.GetString("mqtt.host"),
			Port:           v.GetInt("mqtt.port"),
			ClientID:       v.GetString("mqtt.client_id"),
			Username:       v.GetString("mqtt.username"),
			Password:       v.GetString("mqtt.password"),
			QoS:            byte(v.GetInt("mqtt.qos")),
			KeepAlive:      v.GetDuration("mqtt.keepalive"),
			TLS:            v.GetBool("mqtt.tls"),
			TopicPrefix:    v.GetString("mqtt.topic_prefix"),
			ReconnectDelay: v.GetDuration("mqtt.reconnect_delay"),
			ResultPollWait: v.GetDuration("mqtt.result_poll_wait"),
		},
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", 8080)
	v.SetDefault("db_path", "fiscalgw.db")
	v.SetDefault("job.poll_interval", 1*time.Second)
	v.SetDefault("job.timeout", 15*time.Second)
	v.SetDefault("job.max_retries", 1)
	v.SetDefault("dry_run", false)

	mqttDefaults := mqttbridge.DefaultConfig()
	v.SetDefault("mqtt.host", mqttDefaults.Host)
	v.SetDefault("mqtt.port", mqttDefaults.Port)
	v.SetDefault("mqtt.client_id", mqttDefaults.ClientID)
	v.SetDefault("mqtt.qos", int(mqttDefaults.QoS))
	v.SetDefault("mqtt.keepalive", mqttDefaults.KeepAlive)
	v.SetDefault("mqtt.tls", mqttDefaults.TLS)
	v.SetDefault("mqtt.topic_prefix", mqttDefaults.TopicPrefix)
	v.SetDefault("mqtt.reconnect_delay", mqttDefaults.ReconnectDelay)
	v.SetDefault("mqtt.result_poll_wait", mqttDefaults.ResultPollWait)
}
