package milvus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{"默认配置", *DefaultConfig(), ""},
		{"缺少地址", Config{}, "address"},
		{"API Key 与用户名同时设置", Config{Address: "x:1", APIKey: "k", Username: "u", Password: "p"}, "mutually exclusive"},
		{"只有用户名", Config{Address: "x:1", Username: "u"}, "together"},
		{"负超时", Config{Address: "x:1", DialTimeout: -time.Second}, "dial_timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestClientConfig(t *testing.T) {
	cfg := Config{Address: "milvus:19530", Username: "root", Password: "Milvus", Database: "rag"}
	cc := cfg.clientConfig()

	assert.Equal(t, "milvus:19530", cc.Address)
	assert.Equal(t, "root", cc.Username)
	assert.Equal(t, "Milvus", cc.Password)
	assert.Equal(t, "rag", cc.DBName)
	assert.Empty(t, cc.APIKey)
}
