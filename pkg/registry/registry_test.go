// pkg/registry/registry_test.go
package registry

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCatalog() *ActivityRegistry {
	return &ActivityRegistry{
		Version:     "1.0.0",
		LastUpdated: "2024-03-10T09:00:00Z",
		Activities: []Activity{
			{
				ID:          "evaluate-rules",
				DisplayName: "Evaluate Rules",
				Category:    "rules",
				TaskType:    "notification-evaluate-rules",
				ErrorCodes:  []string{"EVENT_INPUT_INVALID", "RULE_STORE_UNAVAILABLE"},
			},
			{
				ID:          "cancel-notification",
				DisplayName: "Cancel Notification",
				Category:    "delivery",
				TaskType:    "notification-cancel",
				ErrorCodes:  []string{"NOTIFICATION_NOT_FOUND", "CANCEL_CONFLICT"},
			},
		},
	}
}

func TestSaveAndLoadRegistry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog", "activity-registry.json")

	require.NoError(t, SaveRegistry(testCatalog(), path))

	loaded, err := LoadRegistry(path)
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", loaded.Version)
	require.Len(t, loaded.Activities, 2)
	assert.Equal(t, "notification-evaluate-rules", loaded.Activities[0].TaskType)
	assert.Equal(t, []string{"NOTIFICATION_NOT_FOUND", "CANCEL_CONFLICT"}, loaded.Activities[1].ErrorCodes)
}

func TestLoadRegistry_MissingFile(t *testing.T) {
	_, err := LoadRegistry(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestFindByTaskType(t *testing.T) {
	reg := testCatalog()

	activity, ok := reg.FindByTaskType("notification-cancel")
	require.True(t, ok)
	assert.Equal(t, "cancel-notification", activity.ID)

	_, ok = reg.FindByTaskType("unknown-task")
	assert.False(t, ok)
}
