package database

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/sma-timetable-api/pkg/config"
)

func TestDSN(t *testing.T) {
	dsn := DSN(config.DatabaseConfig{
		Host:     "db",
		Port:     5433,
		User:     "timetable",
		Password: "secret",
		Name:     "sma_timetable",
		SSLMode:  "require",
	})

	assert.Equal(t, "host=db port=5433 user=timetable password=secret dbname=sma_timetable sslmode=require", dsn)
}
