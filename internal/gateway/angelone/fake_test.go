package angelone

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

const testSecret = "JBSWY3DPEHPK3PXP"

// fakeSmartAPI serves the subset of SmartAPI the broker uses.
type fakeSmartAPI struct {
	mu         sync.Mutex
	logins     int
	expireOnce bool
	paths      []string
	lastOrder  map[string]string
	authHeader string
	privateKey string
	orderBook  string
	positions  string
	master     string
}

func (f *fakeSmartAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paths = append(f.paths, r.URL.Path)
	w.Header().Set("Content-Type", "application/json")

	if r.URL.Path == "/scrip" {
		_, _ = w.Write([]byte(f.master))
		return
	}
	if r.URL.Path == pathLogin {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["clientcode"] != "A123" || len(body["totp"]) != 6 {
			_, _ = w.Write([]byte(`{"status":false,"message":"Invalid totp","errorcode":"AB1050","data":null}`))
			return
		}
		f.logins++
		_, _ = w.Write([]byte(`{"status":true,"message":"SUCCESS","errorcode":"","data":{"jwtToken":"Bearer jwt-` +
			string(rune('0'+f.logins)) + `","refreshToken":"r","feedToken":"f"}}`))
		return
	}

	f.authHeader = r.Header.Get("Authorization")
	f.privateKey = r.Header.Get("X-PrivateKey")
	if f.expireOnce {
		f.expireOnce = false
		_, _ = w.Write([]byte(`{"status":false,"message":"Invalid Token","errorcode":"AG8001","data":""}`))
		return
	}
	switch r.URL.Path {
	case pathPlaceOrder:
		_ = json.NewDecoder(r.Body).Decode(&f.lastOrder)
		_, _ = w.Write([]byte(`{"status":true,"message":"SUCCESS","errorcode":"","data":{"script":"RELIANCE-EQ","orderid":"201020000000080"}}`))
	case pathOrderBook:
		_, _ = w.Write([]byte(f.orderBook))
	case pathPositions:
		_, _ = w.Write([]byte(f.positions))
	case pathRMS:
		_, _ = w.Write([]byte(`{"status":true,"message":"SUCCESS","errorcode":"","data":{"net":"250000.50","availablecash":"200000.25","m2munrealized":"-120.5"}}`))
	case pathLTP:
		_, _ = w.Write([]byte(`{"status":true,"message":"SUCCESS","errorcode":"","data":{"exchange":"NSE","tradingsymbol":"RELIANCE-EQ","symboltoken":"2885","ltp":2913.5}}`))
	case pathCancelOrder:
		_, _ = w.Write([]byte(`{"status":true,"message":"SUCCESS","errorcode":"","data":{"orderid":"201020000000080"}}`))
	default:
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"status":false,"message":"not found"}`))
	}
}

func newFakeBroker(t *testing.T, f *fakeSmartAPI, pinned map[string]string) *Broker {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return New(Config{
		APIKey:        "key",
		ClientCode:    "A123",
		Password:      "1234",
		TOTPSecret:    testSecret,
		BaseURL:       srv.URL,
		InstrumentURL: srv.URL + "/scrip",
		SymbolTokens:  pinned,
	})
}
