package subsidy

import (
	"context"
	"encoding/json"
	"errors"
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
	return NewClient(apiclient.New(apiclient.Config{Service: "subsidy", BaseURL: server.URL, Timeout: time.Second}))
}

func TestCanRedeemDecodesTransactions(t *testing.T) {
	subsidyUUID := uuid.New()
	txUUID := uuid.New()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v2/subsidies/"+subsidyUUID.String()+"/can-redeem/", r.URL.Path)
		assert.Equal(t, "12", r.URL.Query().Get("lms_user_id"))
		assert.Equal(t, "edX+DemoX", r.URL.Query().Get("content_key"))
		fmt.Fprintf(w, `{"can_redeem":true,"active":true,"content_price":19900,"all_transactions":[
			{"uuid":%q,"state":"committed","quantity":-19900,"reversal":{"uuid":%q,"state":"committed"}}]}`,
			txUUID, uuid.New())
	})

	res, err := client.CanRedeem(context.Background(), subsidyUUID, 12, "edX+DemoX")
	require.NoError(t, err)
	assert.True(t, res.CanRedeem)
	assert.True(t, res.Active)
	require.NotNil(t, res.ContentPrice)
	assert.Equal(t, int64(19900), *res.ContentPrice)
	require.Len(t, res.AllTransactions, 1)
	assert.True(t, res.AllTransactions[0].IsReversed())
	assert.False(t, res.AllTransactions[0].IsSuccessfulRedemption())
	assert.Equal(t, "edX+DemoX", res.ContentKey)
}

func TestListTransactionsFollowsPages(t *testing.T) {
	subsidyUUID := uuid.New()
	policyUUID := uuid.New()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, policyUUID.String(), r.URL.Query().Get("subsidy_access_policy_uuid"))
		switch r.URL.Query().Get("page") {
		case "1":
			fmt.Fprintf(w, `{"next":"page2","results":[{"uuid":%q,"state":"committed","quantity":-100}],"aggregates":{"total_quantity":-300}}`, uuid.New())
		default:
			fmt.Fprintf(w, `{"next":null,"results":[{"uuid":%q,"state":"pending","quantity":-200}],"aggregates":{"total_quantity":-300}}`, uuid.New())
		}
	})

	list, err := client.ListTransactions(context.Background(), TransactionFilter{
		SubsidyUUID:             subsidyUUID,
		SubsidyAccessPolicyUUID: policyUUID,
	})
	require.NoError(t, err)
	assert.Len(t, list.Results, 2)
	assert.Equal(t, int64(-300), list.Aggregates.TotalQuantity)
}

func TestCreateTransactionPostsIdempotencyKey(t *testing.T) {
	subsidyUUID := uuid.New()
	policyUUID := uuid.New()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var body map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "key-1", body["idempotency_key"])
		assert.Equal(t, policyUUID.String(), body["subsidy_access_policy_uuid"])
		w.WriteHeader(http.StatusCreated)
		fmt.Fprintf(w, `{"uuid":%q,"state":"created","idempotency_key":"key-1"}`, uuid.New())
	})

	tx, err := client.CreateTransaction(context.Background(), CreateTransactionRequest{
		SubsidyUUID:             subsidyUUID,
		LmsUserID:               5,
		ContentKey:              "edX+DemoX",
		SubsidyAccessPolicyUUID: policyUUID,
		IdempotencyKey:          "key-1",
	})
	require.NoError(t, err)
	assert.Equal(t, StateCreated, tx.State)
}

func TestLedgerHTTPErrorBecomesAPIError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"detail":"Insufficient balance"}`))
	})

	_, err := client.CreateTransaction(context.Background(), CreateTransactionRequest{SubsidyUUID: uuid.New()})

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.Equal(t, "Insufficient balance", apiErr.Detail)
	assert.Equal(t, "Subsidy Transaction API error: Insufficient balance", apiErr.Error())
	assert.Equal(t, "422", apiErr.StatusCodeString())
}

func TestRetrieveSubsidyNotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := client.RetrieveSubsidy(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrSubsidyNotFound)
}

func TestSubsidyIsCurrentlyActive(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	assert.True(t, Subsidy{ActiveDatetime: &past, ExpirationDatetime: &future}.IsCurrentlyActive(now))
	assert.False(t, Subsidy{ActiveDatetime: &future}.IsCurrentlyActive(now))
	assert.False(t, Subsidy{ExpirationDatetime: &past}.IsCurrentlyActive(now))
	assert.False(t, Subsidy{RetiredAt: &past}.IsCurrentlyActive(now))
}
