package db

import (
	"errors"
	"testing"

	"github.com/mathemusician/church-volunteers/internal/config"
)

func TestOpen_EmptyDSN(t *testing.T) {
	if _, err := OpenMySQL(config.DatabaseConfig{}); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("OpenMySQL = %v, want ErrNotConfigured", err)
	}
	if _, err := OpenClickHouse(config.DatabaseConfig{}); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("OpenClickHouse = %v, want ErrNotConfigured", err)
	}
	if _, err := OpenRedis(config.RedisConfig{}); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("OpenRedis = %v, want ErrNotConfigured", err)
	}
}
