package testutil

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/rahmahapps/mawadda-server/cache"
	dbsqlite "github.com/rahmahapps/mawadda-server/db/sqlite"
	"github.com/rahmahapps/mawadda-server/model"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// SetupTestDB creates a uniquely named in-memory SQLite DB and runs
// AutoMigrate. Each call gets its own database, so tests stay isolated.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String())
	db, err := dbsqlite.Open(dsn)
	require.NoError(t, err, "SetupTestDB: Open")
	require.NoError(t, model.AutoMigrate(db), "SetupTestDB: AutoMigrate")
	return db
}

// SetupTestCache creates a LocalCache and LocalPubSub (no Redis required).
func SetupTestCache(t *testing.T) (cache.Cache, cache.PubSub) {
	t.Helper()
	cfg := cache.Config{} // empty RedisAddr → in-process implementations
	c, err := cache.New(cfg)
	require.NoError(t, err, "SetupTestCache: New")
	ps, err := cache.NewPubSub(cfg)
	require.NoError(t, err, "SetupTestCache: NewPubSub")
	return c, ps
}

// CreateUser inserts a user with sensible profile defaults, for tests that
// need counterparts to act on.
func CreateUser(t *testing.T, db *gorm.DB, username string) *model.User {
	t.Helper()
	u := &model.User{
		Username:     username,
		PasswordHash: "x",
		DisplayName:  username,
		Gender:       "female",
		BirthYear:    1996,
		Location:     "Birmingham, UK",
		Status:       1,
	}
	require.NoError(t, db.Create(u).Error, "CreateUser")
	return u
}
