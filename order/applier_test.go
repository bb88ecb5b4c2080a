package order

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

// MockVenue 模拟撮合系统：记录请求，按 statusFor 返回单笔状态
type MockVenue struct {
	mu        sync.Mutex
	requests  []MultiLimitOrder
	err       error
	nilResp   bool
	statusFor func(i int, item MultiOrderItem) OrderStatus
	deadline  bool
}

func (m *MockVenue) PlaceMultiLimitOrder(ctx context.Context, req MultiLimitOrder) (*MultiLimitOrderResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	_, m.deadline = ctx.Deadline()
	if m.err != nil {
		return nil, m.err
	}
	if m.nilResp {
		return nil, nil
	}
	resp := &MultiLimitOrderResponse{ID: req.ID, AssetPairID: req.AssetPairID, Status: MeStatusOk}
	for i, item := range req.Orders {
		st := OrderStatus{ID: item.ID, Status: MeStatusOk}
		if m.statusFor != nil {
			st = m.statusFor(i, item)
			st.ID = item.ID
		}
		resp.Statuses = append(resp.Statuses, st)
	}
	return resp, nil
}

func (m *MockVenue) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

var testPairs = StaticPairInfo{
	"BTCUSD": {AssetPairID: "BTCUSD", PriceAccuracy: 2, VolumeAccuracy: 3, MinVolume: d(0.001)},
	"ETHUSD": {AssetPairID: "ETHUSD", PriceAccuracy: 1, VolumeAccuracy: 2},
}

func newTestApplier(v *MockVenue) *Applier {
	return NewApplier(v, testPairs, ApplierConfig{WalletID: "wallet-1", Timeout: time.Second}, nil)
}

func ladderOrders() []LimitOrder {
	return []LimitOrder{
		NewLimitOrder(d(110.12345), d(5.00049), TradeTypeSell),
		NewLimitOrder(d(89.995), d(5), TradeTypeBuy),
	}
}

func TestApplier_BuildsRequest(t *testing.T) {
	v := &MockVenue{}
	a := newTestApplier(v)

	res, err := a.Apply(context.Background(), "BTCUSD", ladderOrders())
	require.NoError(t, err)
	require.Len(t, res, 2)
	require.Equal(t, 1, v.calls())

	req := v.requests[0]
	assert.Equal(t, "wallet-1", req.ClientID)
	assert.Equal(t, "BTCUSD", req.AssetPairID)
	assert.True(t, req.CancelPreviousOrders)
	assert.Equal(t, CancelModeBothSides, req.CancelMode)
	assert.NotEmpty(t, req.ID)
	assert.True(t, v.deadline, "venue call must be bounded")

	require.Len(t, req.Orders, 2)
	assert.Equal(t, OrderActionSell, req.Orders[0].OrderAction)
	assert.True(t, req.Orders[0].Price.Equal(d(110.12)), req.Orders[0].Price.String())
	assert.True(t, req.Orders[0].Volume.Equal(d(5)), req.Orders[0].Volume.String())
	assert.Equal(t, OrderActionBuy, req.Orders[1].OrderAction)
	assert.True(t, req.Orders[1].Price.Equal(d(90)), req.Orders[1].Price.String())
	assert.NotEqual(t, req.Orders[0].ID, req.Orders[1].ID)

	// 返回的是未取整的期望订单，只带回执
	assert.True(t, res[0].Price.Equal(d(110.12345)))
	assert.Equal(t, ErrorNone, res[0].Error)
}

func TestApplier_SkipsUnchangedSet(t *testing.T) {
	v := &MockVenue{}
	a := newTestApplier(v)

	_, err := a.Apply(context.Background(), "BTCUSD", ladderOrders())
	require.NoError(t, err)
	// 新 ID、相同报价
	res, err := a.Apply(context.Background(), "BTCUSD", ladderOrders())
	require.NoError(t, err)
	assert.Equal(t, 1, v.calls())
	assert.Len(t, res, 2)

	// 其他交易对独立计算
	_, err = a.Apply(context.Background(), "ETHUSD", ladderOrders())
	require.NoError(t, err)
	assert.Equal(t, 2, v.calls())

	changed := ladderOrders()
	changed[1].Volume = d(4)
	_, err = a.Apply(context.Background(), "BTCUSD", changed)
	require.NoError(t, err)
	assert.Equal(t, 3, v.calls())
}

func TestApplier_EmptySetCancelsOnce(t *testing.T) {
	v := &MockVenue{}
	a := newTestApplier(v)

	_, err := a.Apply(context.Background(), "BTCUSD", []LimitOrder{})
	require.NoError(t, err)
	_, err = a.Apply(context.Background(), "BTCUSD", nil)
	require.NoError(t, err)
	require.Equal(t, 1, v.calls())
	assert.Empty(t, v.requests[0].Orders)
	assert.True(t, v.requests[0].CancelPreviousOrders)
}

func TestApplier_StatusMapping(t *testing.T) {
	tests := []struct {
		name        string
		status      OrderStatus
		wantError   LimitOrderError
		wantMessage string
	}{
		{name: "ok", status: OrderStatus{Status: MeStatusOk}, wantError: ErrorNone},
		{name: "已知错误带原因", status: OrderStatus{Status: MeStatusNotEnoughFunds, StatusReason: "no funds"}, wantError: ErrorNotEnoughFunds, wantMessage: "no funds"},
		{name: "余额低于保留", status: OrderStatus{Status: MeStatusBalanceLowerThanReserved, StatusReason: "reserved"}, wantError: ErrorLowBalance, wantMessage: "reserved"},
		{name: "未知错误带原因", status: OrderStatus{Status: MeStatusRuntime, StatusReason: "boom"}, wantError: ErrorUnknown, wantMessage: "boom"},
		{name: "未知错误无原因", status: OrderStatus{Status: "Whatever"}, wantError: ErrorUnknown, wantMessage: "Unknown error"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			v := &MockVenue{statusFor: func(int, MultiOrderItem) OrderStatus { return tc.status }}
			a := newTestApplier(v)
			res, err := a.Apply(context.Background(), "BTCUSD", ladderOrders())
			require.NoError(t, err)
			for _, o := range res {
				assert.Equal(t, tc.wantError, o.Error)
				assert.Equal(t, tc.wantMessage, o.ErrorMessage)
			}
		})
	}
}

func TestApplier_RejectedSetBecomesLastApplied(t *testing.T) {
	v := &MockVenue{statusFor: func(i int, _ MultiOrderItem) OrderStatus {
		if i == 0 {
			return OrderStatus{Status: MeStatusLowBalance, StatusReason: "low"}
		}
		return OrderStatus{Status: MeStatusOk}
	}}
	a := newTestApplier(v)

	_, err := a.Apply(context.Background(), "BTCUSD", ladderOrders())
	require.NoError(t, err)
	res, err := a.Apply(context.Background(), "BTCUSD", ladderOrders())
	require.NoError(t, err)
	assert.Equal(t, 1, v.calls())
	assert.Equal(t, ErrorLowBalance, res[0].Error)
	assert.Equal(t, ErrorNone, res[1].Error)

	last, ok := a.LastApplied("BTCUSD")
	require.True(t, ok)
	assert.Len(t, last, 2)
}

func TestApplier_ZeroVolumeAfterRoundingNotSent(t *testing.T) {
	v := &MockVenue{}
	a := newTestApplier(v)

	orders := []LimitOrder{
		NewLimitOrder(d(110), d(0.0004), TradeTypeSell),
		NewLimitOrder(d(90), d(2), TradeTypeBuy),
	}
	res, err := a.Apply(context.Background(), "BTCUSD", orders)
	require.NoError(t, err)
	require.Equal(t, 1, v.calls())

	// 只有买单发给交易所
	require.Len(t, v.requests[0].Orders, 1)
	assert.Equal(t, OrderActionBuy, v.requests[0].Orders[0].OrderAction)

	require.Len(t, res, 2)
	assert.Equal(t, ErrorTooSmallVolume, res[0].Error)
	assert.Equal(t, zeroVolumeMessage, res[0].ErrorMessage)
	assert.Equal(t, ErrorNone, res[1].Error)

	// 相同订单集不重复提交
	_, err = a.Apply(context.Background(), "BTCUSD", orders)
	require.NoError(t, err)
	assert.Equal(t, 1, v.calls())
}

func TestApplier_TransportFailure(t *testing.T) {
	boom := errors.New("connection refused")
	v := &MockVenue{err: boom}
	a := newTestApplier(v)

	_, err := a.Apply(context.Background(), "BTCUSD", ladderOrders())
	require.ErrorIs(t, err, boom)

	// 失败不更新基准，下次继续提交
	v.err = nil
	_, err = a.Apply(context.Background(), "BTCUSD", ladderOrders())
	require.NoError(t, err)
	assert.Equal(t, 2, v.calls())
}

func TestApplier_NilResponse(t *testing.T) {
	v := &MockVenue{nilResp: true}
	a := newTestApplier(v)

	_, err := a.Apply(context.Background(), "BTCUSD", ladderOrders())
	require.ErrorIs(t, err, ErrNilResponse)
	_, ok := a.LastApplied("BTCUSD")
	assert.False(t, ok)
}

func TestApplier_WalletAndPairRequired(t *testing.T) {
	v := &MockVenue{}
	a := NewApplier(v, testPairs, ApplierConfig{}, nil)
	_, err := a.Apply(context.Background(), "BTCUSD", ladderOrders())
	require.ErrorIs(t, err, ErrWalletNotSet)

	a = newTestApplier(v)
	_, err = a.Apply(context.Background(), "XRPUSD", ladderOrders())
	require.ErrorIs(t, err, ErrUnknownPair)
	assert.Equal(t, 0, v.calls())
}

func TestSameQuotes(t *testing.T) {
	a := ladderOrders()
	b := ladderOrders()
	assert.NotEqual(t, a[0].ID, b[0].ID)
	assert.True(t, SameQuotes(a, b))

	b[0].Error = ErrorDuplicate
	assert.True(t, SameQuotes(a, b), "receipt fields are ignored")

	b[0].Price = d(111)
	assert.False(t, SameQuotes(a, b))
	assert.False(t, SameQuotes(a, a[:1]))
	assert.False(t, SameQuotes(a, []LimitOrder{a[1], a[0]}))
}
