package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/mkalala/sokosettle/internal/config"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// testConfig returns a minimal config for testing (in-memory stores)
func testConfig() *config.Config {
	return &config.Config{
		Port:                     "0",
		Env:                      "development",
		LogLevel:                 "error",
		RepostCommissionBps:      config.DefaultRepostBps,
		ProfitShareBps:           config.DefaultProfitShareBps,
		DefaultCommissionPercent: config.DefaultCommissionPercent,
		MobileMoneyPriority:      config.DefaultMobileMoneyPriority,
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := New(testConfig())
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	return s
}

func doJSON(t *testing.T, s *Server, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	w := httptest.NewRecorder()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	s.router.ServeHTTP(w, req)

	resp := make(map[string]any)
	if len(w.Body.Bytes()) > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &resp)
	}
	return w, resp
}

// ---------------------------------------------------------------------------
// Health endpoint tests
// ---------------------------------------------------------------------------

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)

	w, resp := doJSON(t, s, "GET", "/health", "")
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}
	if resp["status"] != "healthy" {
		t.Errorf("Expected status 'healthy', got %v", resp["status"])
	}
}

func TestLivenessEndpoint(t *testing.T) {
	s := newTestServer(t)

	w, _ := doJSON(t, s, "GET", "/health/live", "")
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}
}

func TestReadinessEndpoint(t *testing.T) {
	s := newTestServer(t)

	w, _ := doJSON(t, s, "GET", "/health/ready", "")

	// Server hasn't called Run() so ready is false
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 (not ready), got %d", w.Code)
	}
}

// ---------------------------------------------------------------------------
// Route registration tests
// ---------------------------------------------------------------------------

func TestSettlementRoutesRegistered(t *testing.T) {
	s := newTestServer(t)

	expected := []string{
		"POST:/api/v1/clients",
		"POST:/api/v1/orders",
		"POST:/api/v1/orders/:id/complete",
		"POST:/api/v1/orders/:id/cancel",
		"POST:/api/v1/sales",
		"PUT:/api/v1/sales/:id/items",
		"POST:/api/v1/sales/:id/return",
		"POST:/api/v1/payments/:id/complete",
		"POST:/api/v1/freelance/orders",
		"POST:/api/v1/freelance/orders/:id/release",
		"GET:/api/v1/wallets/:accountId/balance",
		"GET:/api/v1/businesses/:businessId/earnings",
		"POST:/api/v1/loyalty/redeem",
		"GET:/metrics",
		"GET:/ws",
	}

	routeSet := make(map[string]bool)
	for _, route := range s.router.Routes() {
		routeSet[route.Method+":"+route.Path] = true
	}

	for _, e := range expected {
		if !routeSet[e] {
			t.Errorf("Route %s not registered", e)
		}
	}
}

// ---------------------------------------------------------------------------
// End-to-end settlement flow over HTTP
// ---------------------------------------------------------------------------

func TestOrderSettlementOverHTTP(t *testing.T) {
	s := newTestServer(t)

	// Register a client and a business
	w, resp := doJSON(t, s, "POST", "/api/v1/clients", `{"name":"Amina"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201 creating client, got %d: %s", w.Code, w.Body.String())
	}
	clientID, _ := resp["id"].(string)

	w, resp = doJSON(t, s, "POST", "/api/v1/businesses", `{"name":"Atelier Moderne"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201 creating business, got %d", w.Code)
	}
	businessID, _ := resp["id"].(string)

	// List a product with stock
	body := fmt.Sprintf(`{"storeId":"st_1","businessId":%q,"name":"Wax print","price":"25.00","available":10}`, businessID)
	w, resp = doJSON(t, s, "POST", "/api/v1/products", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201 creating product, got %d: %s", w.Code, w.Body.String())
	}
	product, _ := resp["product"].(map[string]any)
	productID, _ := product["id"].(string)
	if productID == "" {
		t.Fatal("Product ID missing from response")
	}

	// Fund the client's token wallet
	w, _ = doJSON(t, s, "POST", "/api/v1/wallets/"+clientID+"/credit",
		`{"accountKind":"client","method":"TOKEN","amount":"100.00"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 crediting wallet, got %d: %s", w.Code, w.Body.String())
	}

	// Place a token order for 2 units + delivery
	body = fmt.Sprintf(`{
		"clientId": %q,
		"method": "TOKEN",
		"deliveryFee": "3.00",
		"items": [{"productId": %q, "quantity": 2}]
	}`, clientID, productID)
	w, resp = doJSON(t, s, "POST", "/api/v1/orders", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201 creating order, got %d: %s", w.Code, w.Body.String())
	}
	orderID, _ := resp["id"].(string)
	if resp["totalAmount"] != "53.00" {
		t.Errorf("Expected server-computed total 53.00, got %v", resp["totalAmount"])
	}

	// Complete the order; the wallet settles
	w, _ = doJSON(t, s, "POST", "/api/v1/orders/"+orderID+"/complete", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 completing order, got %d: %s", w.Code, w.Body.String())
	}

	w, resp = doJSON(t, s, "GET", "/api/v1/wallets/"+clientID+"/balance?method=TOKEN", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 reading balance, got %d", w.Code)
	}
	if resp["balance"] != "47.00" {
		t.Errorf("Expected balance 47.00 after settlement, got %v", resp["balance"])
	}

	// Stock was reserved at creation
	w, resp = doJSON(t, s, "GET", "/api/v1/products/"+productID, "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 reading product, got %d", w.Code)
	}
	product, _ = resp["product"].(map[string]any)
	if avail, _ := product["available"].(float64); avail != 8 {
		t.Errorf("Expected 8 units left, got %v", product["available"])
	}
}

func TestInsufficientBalanceOverHTTP(t *testing.T) {
	s := newTestServer(t)

	_, resp := doJSON(t, s, "POST", "/api/v1/clients", `{"name":"Didier"}`)
	clientID, _ := resp["id"].(string)
	_, resp = doJSON(t, s, "POST", "/api/v1/businesses", `{"name":"Kiosque"}`)
	businessID, _ := resp["id"].(string)

	body := fmt.Sprintf(`{"storeId":"st_1","businessId":%q,"name":"Radio","price":"80.00","available":3}`, businessID)
	_, resp = doJSON(t, s, "POST", "/api/v1/products", body)
	product, _ := resp["product"].(map[string]any)
	productID, _ := product["id"].(string)

	// 10.00 in the wallet, 80.00 order
	doJSON(t, s, "POST", "/api/v1/wallets/"+clientID+"/credit",
		`{"accountKind":"client","method":"TOKEN","amount":"10.00"}`)

	body = fmt.Sprintf(`{"clientId":%q,"method":"TOKEN","items":[{"productId":%q,"quantity":1}]}`, clientID, productID)
	w, _ := doJSON(t, s, "POST", "/api/v1/orders", body)
	if w.Code != http.StatusPaymentRequired {
		t.Errorf("Expected 402 for insufficient balance, got %d: %s", w.Code, w.Body.String())
	}

	// Stock untouched
	_, resp = doJSON(t, s, "GET", "/api/v1/products/"+productID, "")
	product, _ = resp["product"].(map[string]any)
	if avail, _ := product["available"].(float64); avail != 3 {
		t.Errorf("Expected stock unchanged at 3, got %v", product["available"])
	}
}
