package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
server:
  http_port: 9090
jwt:
  secret: s3cret
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.HTTPPort)
	assert.Equal(t, 9090, cfg.Server.WSPort)
	assert.Equal(t, "debug", cfg.Server.Mode)
	assert.Equal(t, "utf8mb4", cfg.MySQL.Charset)
	assert.Equal(t, "coachim:", cfg.Redis.KeyPrefix)
	assert.Equal(t, 168, cfg.JWT.ExpireHours)
	assert.Equal(t, "client", cfg.ExternalJWT.DefaultRole)
	assert.Equal(t, 27*time.Second, cfg.WebSocket.PingPeriod)
	assert.Equal(t, 30*time.Second, cfg.WebSocket.PongWait)
	assert.Equal(t, uint16(1), cfg.WebSocket.MachineId)
	assert.Same(t, cfg, GlobalConfig)
}

func TestLoad_ExternalJWT(t *testing.T) {
	path := writeConfig(t, `
external_jwt:
  enabled: true
  secret: platform
  default_role: dietician
websocket:
  ping_period: 5s
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.True(t, cfg.ExternalJWT.Enabled)
	assert.Equal(t, "platform", cfg.ExternalJWT.Secret)
	assert.Equal(t, "dietician", cfg.ExternalJWT.DefaultRole)
	assert.Equal(t, 5*time.Second, cfg.WebSocket.PingPeriod)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestMySQLConfig_DSN(t *testing.T) {
	c := MySQLConfig{User: "u", Password: "p", Host: "db", Port: 3306, Database: "coachim", Charset: "utf8mb4"}
	assert.Equal(t, "u:p@tcp(db:3306)/coachim?charset=utf8mb4&parseTime=True&loc=Local", c.DSN())
}
