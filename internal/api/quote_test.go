package api

import (
	"net/http"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retailpoint/promo/internal/domain/product"
	"github.com/retailpoint/promo/internal/domain/promotion"
)

func TestQuoteCartStacksPromotions(t *testing.T) {
	products := &mockProductRepo{products: []product.Product{
		{ID: "p1", StoreID: "store-1", Name: "widget", Price: decimal.NewFromInt(10)},
	}}

	buyTwoGetOne := activePromotion("bxgy", "store-1", promotion.BuyXGetYRule{
		BuyQuantity: 2, GetQuantity: 1, SameItem: true,
	})
	buyTwoGetOne.Priority = 10

	tenOff := activePromotion("qty10", "store-1", promotion.QuantityDiscountRule{
		MinQuantity:     2,
		DiscountPercent: decimal.NewFromInt(10),
	})

	promos := &mockPromotionRepo{promotions: []promotion.Promotion{buyTwoGetOne, tenOff}}
	srv := newTestServer(t, products, promos)

	rec := doJSON(t, srv, http.MethodPost, "/api/stores/store-1/cart/quote",
		`{"user_id": "u1", "items": [{"product_id": "p1", "quantity": 6}]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	q := decodeBody[quoteResponse](t, rec)

	// 6 units: buy-2-get-1 frees one unit per two paid, so 3 go free and 3
	// stay paid (30.00); the quantity discount then takes 10% of the
	// remaining 30.
	require.Len(t, q.Applied, 2)
	assert.Equal(t, "bxgy", q.Applied[0].PromotionID)
	assert.Equal(t, "qty10", q.Applied[1].PromotionID)

	require.Len(t, q.Lines, 1)
	assert.Equal(t, 3, q.Lines[0].FreeQuantity)
	assert.InDelta(t, 30.0, q.Lines[0].LineTotal, 0.001)

	assert.InDelta(t, 60.0, q.OriginalTotal, 0.001)
	assert.InDelta(t, 3.0, q.TotalDiscount, 0.001)
	assert.InDelta(t, 27.0, q.FinalTotal, 0.001)
}

func TestQuoteCartNoPromotions(t *testing.T) {
	products := &mockProductRepo{products: []product.Product{
		{ID: "p1", StoreID: "store-1", Price: decimal.NewFromInt(5)},
	}}
	srv := newTestServer(t, products, &mockPromotionRepo{})

	rec := doJSON(t, srv, http.MethodPost, "/api/stores/store-1/cart/quote",
		`{"items": [{"product_id": "p1", "quantity": 2}]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	q := decodeBody[quoteResponse](t, rec)
	assert.Empty(t, q.Applied)
	assert.InDelta(t, 10.0, q.OriginalTotal, 0.001)
	assert.InDelta(t, 10.0, q.FinalTotal, 0.001)
}

func TestRedeemCode(t *testing.T) {
	products := &mockProductRepo{products: []product.Product{
		{ID: "p1", StoreID: "store-1", Price: decimal.NewFromInt(20)},
	}}

	promo := activePromotion("cart5", "store-1", promotion.CartTotalRule{
		MinAmount:      decimal.NewFromInt(30),
		DiscountAmount: decimal.NewFromInt(5),
	})
	promo.Code = "SAVE5"
	promo.RequiresCode = true
	promo.AutoApply = false

	promos := &mockPromotionRepo{promotions: []promotion.Promotion{promo}}
	srv := newTestServer(t, products, promos)

	rec := doJSON(t, srv, http.MethodPost, "/api/stores/store-1/promotions/redeem",
		`{"user_id": "u1", "code": "save5", "items": [{"product_id": "p1", "quantity": 2}]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	q := decodeBody[quoteResponse](t, rec)
	require.Len(t, q.Applied, 1)
	assert.Equal(t, "save5", q.Applied[0].Code)
	assert.InDelta(t, 5.0, q.TotalDiscount, 0.001)
	assert.InDelta(t, 35.0, q.FinalTotal, 0.001)

	require.Len(t, promos.usages["cart5"], 1)
	assert.Equal(t, "u1", promos.usages["cart5"][0].UserID)
	assert.Equal(t, "save5", promos.usages["cart5"][0].Code)
}

func TestRedeemCodeErrors(t *testing.T) {
	products := &mockProductRepo{products: []product.Product{
		{ID: "p1", StoreID: "store-1", Price: decimal.NewFromInt(20)},
	}}

	expired := activePromotion("old", "store-1", promotion.CartTotalRule{
		MinAmount:      decimal.NewFromInt(10),
		DiscountAmount: decimal.NewFromInt(5),
	})
	expired.Code = "EXPIRED"
	expired.EndDate = time.Now().Add(-time.Minute)

	promos := &mockPromotionRepo{promotions: []promotion.Promotion{expired}}
	srv := newTestServer(t, products, promos)

	tests := []struct {
		name       string
		code       string
		wantStatus int
		wantCode   string
	}{
		{
			name:       "unknown code",
			code:       "GHOST",
			wantStatus: http.StatusNotFound,
			wantCode:   codePromoMissing,
		},
		{
			name:       "expired promotion",
			code:       "EXPIRED",
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   codeNotEligible,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, srv, http.MethodPost, "/api/stores/store-1/promotions/redeem",
				`{"code": "`+tt.code+`", "items": [{"product_id": "p1", "quantity": 1}]}`)
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())

			resp := decodeBody[errorResponse](t, rec)
			assert.Equal(t, tt.wantCode, resp.Code)
		})
	}

	assert.Empty(t, promos.usages)
}
