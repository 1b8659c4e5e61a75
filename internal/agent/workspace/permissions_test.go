package workspace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Drakonis96/optimAIzer-sub001/internal/errors"
)

func TestCheckGatesMappedCategories(t *testing.T) {
	perms := Permissions{
		NotesAccess:    true,
		InternetAccess: true,
	}

	assert.NoError(t, perms.Check("notes"))
	assert.NoError(t, perms.Check("internet"))

	for _, category := range []string{"scheduler", "calendar", "email", "media", "terminal", "code"} {
		err := perms.Check(category)
		var denied *errors.PermissionDeniedError
		require.ErrorAs(t, err, &denied, "category %s", category)
		assert.Equal(t, category, denied.Category)
	}
}

func TestCheckAllowsUnmappedCategories(t *testing.T) {
	var none Permissions
	for _, category := range []string{"memory", "messaging", "home", "undo", "anything_else"} {
		assert.NoError(t, none.Check(category), "category %s", category)
	}
}

func TestAllowsHostEmptyListAllowsEverything(t *testing.T) {
	var perms Permissions
	assert.True(t, perms.AllowsHost("example.com"))
	assert.True(t, perms.AllowsHost("anything.net"))
}

func TestAllowsHostMatchesEntriesAndSubdomains(t *testing.T) {
	perms := Permissions{AllowedWebsites: []string{"example.com", "*.trusted.org"}}

	assert.True(t, perms.AllowsHost("example.com"))
	assert.True(t, perms.AllowsHost("docs.example.com"))
	assert.True(t, perms.AllowsHost("EXAMPLE.COM"))
	assert.True(t, perms.AllowsHost("wiki.trusted.org"))
	assert.True(t, perms.AllowsHost("trusted.org"))

	assert.False(t, perms.AllowsHost("example.com.evil.net"))
	assert.False(t, perms.AllowsHost("notexample.com"))
	assert.False(t, perms.AllowsHost(""))
}
