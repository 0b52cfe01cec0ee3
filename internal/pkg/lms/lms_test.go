package lms

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enterprise-access/access-api/internal/pkg/apiclient"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(apiclient.New(apiclient.Config{Service: "lms", BaseURL: server.URL, Timeout: time.Second}))
}

func TestGetEnterpriseUser(t *testing.T) {
	enterpriseUUID := uuid.New()
	groupUUID := uuid.New()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/enterprise/api/v1/enterprise-learner/", r.URL.Path)
		assert.Equal(t, "9", r.URL.Query().Get("user_ids"))
		fmt.Fprintf(w, `{"results":[{"active":true,"user":{"id":9,"email":"l@example.com"},
			"enterprise_customer":{"uuid":%q},"enterprise_group":[%q]}]}`, enterpriseUUID, groupUUID)
	})

	user, err := client.GetEnterpriseUser(context.Background(), enterpriseUUID, 9)
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, int64(9), user.LmsUserID)
	assert.True(t, user.InAnyGroup([]uuid.UUID{uuid.New(), groupUUID}))
	assert.False(t, user.InAnyGroup([]uuid.UUID{uuid.New()}))
}

func TestGetEnterpriseUserNotMember(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"results":[]}`))
	})

	user, err := client.GetEnterpriseUser(context.Background(), uuid.New(), 9)
	require.NoError(t, err)
	assert.Nil(t, user)
}

func TestGetEnterpriseCustomerData(t *testing.T) {
	enterpriseUUID := uuid.New()
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/enterprise/api/v1/enterprise-customer/"+enterpriseUUID.String()+"/", r.URL.Path)
		_, _ = w.Write([]byte(`{"contact_email":"","admin_users":[{"email":"admin@example.com","lms_user_id":3}]}`))
	})

	customer, err := client.GetEnterpriseCustomerData(context.Background(), enterpriseUUID)
	require.NoError(t, err)
	require.Len(t, customer.AdminUsers, 1)
	assert.Equal(t, "admin@example.com", customer.AdminUsers[0].Email)
	require.NotNil(t, customer.AdminUsers[0].LmsUserID)
	assert.Equal(t, int64(3), *customer.AdminUsers[0].LmsUserID)
}

func TestGetEnterpriseCustomerDataNotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := client.GetEnterpriseCustomerData(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrEnterpriseNotFound)
}
