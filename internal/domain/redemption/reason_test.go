package redemption

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdminContactJSON(t *testing.T) {
	adminID := int64(77)
	raw, err := json.Marshal([]AdminContact{
		{Email: "contact@example.com"},
		{Email: "a@example.com", LmsUserID: &adminID},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `[{"email":"contact@example.com"},{"email":"a@example.com","lms_user_id":77}]`, string(raw))
}
