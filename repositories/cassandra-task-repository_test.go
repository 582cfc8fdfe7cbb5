package repositories

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCassandraTaskRepository(t *testing.T) {
	hosts := os.Getenv("CASS_TEST_HOSTS")
	if hosts == "" {
		t.Skip("CASS_TEST_HOSTS not set")
	}

	repo, err := NewCassandraTaskRepository(strings.Split(hosts, ","), "tasks_test")
	require.NoError(t, err)
	t.Cleanup(repo.CloseSession)

	require.NoError(t, repo.CreateTable(context.Background()))

	testRepositoryContract(t, repo)

	t.Run("task recreated after delete is visible", func(t *testing.T) {
		ctx := context.Background()
		task := newTestTask(t, "cass-owner", "first life")

		_, err := repo.Save(ctx, task)
		require.NoError(t, err)
		deleted, err := repo.Delete(ctx, task.ID, task.OwnerID)
		require.NoError(t, err)
		require.True(t, deleted)

		require.NoError(t, task.Rename("second life"))
		_, err = repo.Save(ctx, task)
		require.NoError(t, err)

		got, err := repo.FindByIDAndOwner(ctx, task.ID, task.OwnerID)
		require.NoError(t, err)
		require.NotNil(t, got)
		require.Equal(t, "second life", got.Title)
	})
}
