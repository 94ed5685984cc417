package wallet

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"bizwallet/internal/auth"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func balanceRouter(store *MemoryStore, businessID uuid.UUID, cost string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/pay", func(c *gin.Context) {
		if businessID != uuid.Nil {
			c.Request = c.Request.WithContext(auth.WithBusiness(c.Request.Context(), businessID, "member"))
		}
		c.Next()
	}, RequireSufficientBalance(store, func(*gin.Context) (decimal.Decimal, error) {
		return decimal.RequireFromString(cost), nil
	}), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r
}

func TestRequireSufficientBalance(t *testing.T) {
	store := NewMemoryStore(nil)
	rich := store.Seed(Account{Balance: decimal.NewFromInt(100), Currency: "EUR"})
	poor := store.Seed(Account{Balance: decimal.NewFromInt(5), Currency: "EUR"})
	frozen := store.Seed(Account{Balance: decimal.NewFromInt(100), Currency: "EUR", Frozen: true})

	cases := []struct {
		name string
		id   uuid.UUID
		want int
	}{
		{"enough", rich.ID, http.StatusOK},
		{"insufficient", poor.ID, http.StatusBadRequest},
		{"frozen", frozen.ID, http.StatusBadRequest},
		{"unknown account", uuid.New(), http.StatusNotFound},
		{"no business context", uuid.Nil, http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			balanceRouter(store, tc.id, "40").ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/pay", nil))
			if w.Code != tc.want {
				t.Fatalf("expected %d, got %d (%s)", tc.want, w.Code, w.Body.String())
			}
		})
	}
}
