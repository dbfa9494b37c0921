package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-redis/redismock/v8"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/connectplus/wallet-ledger/internal/config"
	"github.com/connectplus/wallet-ledger/internal/logger"
	"github.com/connectplus/wallet-ledger/internal/model"
	"github.com/connectplus/wallet-ledger/internal/repo"
	"github.com/connectplus/wallet-ledger/internal/service"
)

func TestErrStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{service.ErrTransactionNotFound, http.StatusNotFound},
		{service.ErrInvalidState, http.StatusConflict},
		{repo.ErrAlreadyResolved, http.StatusConflict},
		{service.ErrBankNotLinked, http.StatusBadRequest},
		{service.ErrBelowMinimum, http.StatusBadRequest},
		{service.ErrInvalidAmount, http.StatusBadRequest},
		{service.ErrReasonRequired, http.StatusBadRequest},
		{service.ErrInvalidDirection, http.StatusBadRequest},
		{service.ErrBankInfoIncomplete, http.StatusBadRequest},
		{repo.ErrInsufficientBalance, http.StatusBadRequest},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, errStatus(c.err), c.err.Error())
	}
}

func newTestRouter(t *testing.T) http.Handler {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	assert.NoError(t, err)
	assert.NoError(t, db.AutoMigrate(&model.Ledger{}, &model.Transaction{}, &model.BankInfo{}, &model.OutboxEvent{}))

	assert.NoError(t, db.Create(&model.Ledger{
		AccountID: "acc-42",
		Balance:   decimal.NewFromInt(200000),
	}).Error)
	assert.NoError(t, db.Create(&model.BankInfo{
		AccountID:     "acc-42",
		BankName:      "Vietcombank",
		AccountNumber: "0123456789",
		HolderName:    "Nguyen Thi Mai",
	}).Error)

	rdb, _ := redismock.NewClientMock()
	log, _ := logger.NewLogger("test")
	repository := repo.NewRepository(db, rdb, &kafka.Writer{}, log)
	svc := service.NewLedgerService(repository, decimal.NewFromInt(50000), log)

	cfg := &config.Config{}
	cfg.RateLimit.RPS = 1000
	cfg.RateLimit.Burst = 1000
	cfg.Auth.JWTSecret = testSecret

	return NewRouter(svc, cfg, log)
}

func doJSON(r http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)
	return w
}

func TestWithdrawalRoundTrip(t *testing.T) {
	r := newTestRouter(t)
	user := signToken(t, "acc-42", "user")
	admin := signToken(t, "admin-1", "admin")

	// malformed and below-minimum amounts are refused
	w := doJSON(r, http.MethodPost, "/v1/wallet/withdrawals", user, `{"amount":"abc"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = doJSON(r, http.MethodPost, "/v1/wallet/withdrawals", user, `{"amount":"49999"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = doJSON(r, http.MethodPost, "/v1/wallet/withdrawals", user, `{"amount":"50000.5"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// valid request comes back pending with the debit applied
	w = doJSON(r, http.MethodPost, "/v1/wallet/withdrawals", user, `{"amount":"50000"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	var tx struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &tx))
	assert.Equal(t, model.StatusPending, tx.Status)
	assert.NotEmpty(t, tx.ID)

	w = doJSON(r, http.MethodGet, "/v1/wallet/balance", user, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "150000")

	// a user token cannot reach the approval surface
	w = doJSON(r, http.MethodPost, "/v1/admin/withdrawals/"+tx.ID+"/reject", user, `{"reason":"bad account"}`)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// reject needs a reason, refunds once, and resolution is terminal
	w = doJSON(r, http.MethodPost, "/v1/admin/withdrawals/"+tx.ID+"/reject", admin, `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = doJSON(r, http.MethodPost, "/v1/admin/withdrawals/"+tx.ID+"/reject", admin, `{"reason":"bad account"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "bad account")
	w = doJSON(r, http.MethodPost, "/v1/admin/withdrawals/"+tx.ID+"/reject", admin, `{"reason":"again"}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doJSON(r, http.MethodGet, "/v1/wallet/balance", user, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "200000")

	// unknown transaction id maps to 404
	w = doJSON(r, http.MethodPost, "/v1/admin/withdrawals/no-such-id/approve", admin, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdjustRoundTrip(t *testing.T) {
	r := newTestRouter(t)
	admin := signToken(t, "admin-1", "admin")

	w := doJSON(r, http.MethodPost, "/v1/admin/ledgers/acc-42/adjust", admin, `{"amount":"1000","direction":"sideways"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(r, http.MethodPost, "/v1/admin/ledgers/acc-42/adjust", admin, `{"amount":"300000","direction":"subtract"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), model.TypeAdminAdjustment)

	w = doJSON(r, http.MethodGet, "/v1/admin/ledgers/acc-42/balance", admin, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "-100000")
}
