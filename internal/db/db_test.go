package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDriverFor(t *testing.T) {
	driver, source := driverFor("sqlite:///var/lib/chat/kv.db")
	assert.Equal(t, "sqlite", driver)
	assert.Equal(t, "/var/lib/chat/kv.db", source)

	driver, source = driverFor("file:kv.db?cache=shared")
	assert.Equal(t, "sqlite", driver)
	assert.Equal(t, "file:kv.db?cache=shared", source)

	driver, _ = driverFor(":memory:")
	assert.Equal(t, "sqlite", driver)

	driver, source = driverFor("postgres://chat:pw@localhost:5432/chat?sslmode=disable")
	assert.Equal(t, "postgres", driver)
	assert.Equal(t, "postgres://chat:pw@localhost:5432/chat?sslmode=disable", source)
}

func TestConnectSQLiteRunsMigrations(t *testing.T) {
	database, err := Connect("sqlite://" + t.TempDir() + "/kv.db")
	if !assert.NoError(t, err) {
		return
	}
	defer database.Close()

	var count int
	assert.NoError(t, database.Get(&count, `SELECT COUNT(*) FROM kv_store`))
	assert.Equal(t, 0, count)
}
