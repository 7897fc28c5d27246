package db

import (
	"testing"

	"defendo-server/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupContactRepo(t *testing.T) ContactRepository {
	t.Helper()
	return NewContactRepository(SetupTestDB(t))
}

func TestContactRepository_Create(t *testing.T) {
	repo := setupContactRepo(t)

	t.Run("valid contact", func(t *testing.T) {
		contact := models.NewEmergencyContact("user-1", "Mom", "+15550001111", "mother", true)
		require.NoError(t, repo.Create(contact))

		got, err := repo.GetByID(contact.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "Mom", got.Name)
		assert.Equal(t, "+15550001111", got.Phone)
		assert.Equal(t, "mother", got.Relationship)
		assert.True(t, got.IsPrimary)
	})

	t.Run("generates ID when missing", func(t *testing.T) {
		contact := &models.EmergencyContact{UserID: "user-1", Name: "Dad", Phone: "+15550002222"}
		require.NoError(t, repo.Create(contact))
		assert.NotEmpty(t, contact.ID)
	})

	t.Run("nil contact", func(t *testing.T) {
		assert.Error(t, repo.Create(nil))
	})
}

func TestContactRepository_ListByUser_DirectoryOrder(t *testing.T) {
	repo := setupContactRepo(t)

	older := &models.EmergencyContact{ID: "c-1", UserID: "user-1", Name: "Friend", Phone: "+15550001111", CreatedAt: 100}
	newer := &models.EmergencyContact{ID: "c-2", UserID: "user-1", Name: "Sibling", Phone: "+15550002222", CreatedAt: 200}
	primary := &models.EmergencyContact{ID: "c-3", UserID: "user-1", Name: "Mom", Phone: "+15550003333", IsPrimary: true, CreatedAt: 300}
	other := &models.EmergencyContact{ID: "c-4", UserID: "user-2", Name: "Stranger", Phone: "+15550004444", CreatedAt: 50}

	for _, c := range []*models.EmergencyContact{older, newer, primary, other} {
		require.NoError(t, repo.Create(c))
	}

	contacts, err := repo.ListByUser("user-1")
	require.NoError(t, err)
	require.Len(t, contacts, 3)

	// Primary first, then oldest first
	assert.Equal(t, "c-3", contacts[0].ID)
	assert.Equal(t, "c-1", contacts[1].ID)
	assert.Equal(t, "c-2", contacts[2].ID)
}

func TestContactRepository_Update(t *testing.T) {
	repo := setupContactRepo(t)

	contact := models.NewEmergencyContact("user-1", "Mom", "+15550001111", "mother", false)
	require.NoError(t, repo.Create(contact))

	contact.Name = "Mother"
	contact.IsPrimary = true
	require.NoError(t, repo.Update(contact))

	got, err := repo.GetByID(contact.ID)
	require.NoError(t, err)
	assert.Equal(t, "Mother", got.Name)
	assert.True(t, got.IsPrimary)

	t.Run("unknown contact", func(t *testing.T) {
		missing := models.NewEmergencyContact("user-1", "Ghost", "+15550009999", "", false)
		assert.Error(t, repo.Update(missing))
	})
}

func TestContactRepository_Delete(t *testing.T) {
	repo := setupContactRepo(t)

	contact := models.NewEmergencyContact("user-1", "Mom", "+15550001111", "mother", false)
	require.NoError(t, repo.Create(contact))

	require.NoError(t, repo.Delete(contact.ID))

	got, err := repo.GetByID(contact.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	assert.Error(t, repo.Delete(contact.ID), "second delete should report not found")
	assert.Error(t, repo.Delete(""))
}
