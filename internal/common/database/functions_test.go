package database

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCreateConnectionString(t *testing.T) {
	s := CreateConnectionString(map[string]string{
		"host":     "localhost",
		"password": `it's\secret`,
		"port":     "5432",
	})
	assert.Equal(t, `host='localhost' password='it\'s\\secret' port='5432'`, s)
}

func TestUniqueTableName(t *testing.T) {
	a := UniqueTableName("readings")
	b := UniqueTableName("readings")
	assert.True(t, strings.HasPrefix(a, "readings_tmp_"))
	assert.NotEqual(t, a, b)
	assert.Equal(t, strings.ToLower(a), a)
}
