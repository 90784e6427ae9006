package rpc

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"cchlayer/core"
	"cchlayer/ledger"
	"cchlayer/storage"
)

const issuer = "cch1issuer"

// newTestServer builds a processor with one divisible property (90 tokens of
// 10^8 base units) and a resting MetaDEx order, then mounts the router.
func newTestServer(t *testing.T) (*httptest.Server, *core.Processor) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	p, err := core.NewProcessor(storage.NewMemDB(), log, 16)
	if err != nil {
		t.Fatalf("new processor: %v", err)
	}
	blocks := [][]core.Intent{
		{core.IssuanceFixed{
			BaseIntent: core.BaseIntent{TxID: "i1", SenderAddress: issuer},
			Ecosystem:  ledger.EcosystemMain,
			Divisible:  true,
			Name:       "TestCoin",
			Amount:     90_0000_0000,
		}},
		{core.IssuanceFixed{
			BaseIntent: core.BaseIntent{TxID: "i2", SenderAddress: issuer},
			Ecosystem:  ledger.EcosystemMain,
			Divisible:  false,
			Name:       "Indivisible",
			Amount:     1000,
		}},
		{core.MetaDExTrade{
			BaseIntent:      core.BaseIntent{TxID: "t1", SenderAddress: issuer},
			PropertyForSale: 1,
			AmountForSale:   5_0000_0000,
			PropertyDesired: 2,
			AmountDesired:   10,
		}},
	}
	for i, intents := range blocks {
		if err := p.ProcessBlock(int64(i+1), intents); err != nil {
			t.Fatalf("process block %d: %v", i+1, err)
		}
	}
	srv := httptest.NewServer(NewServer(p).Router())
	t.Cleanup(srv.Close)
	return srv, p
}

func getJSON(t *testing.T, url string, wantStatus int, out any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("get %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantStatus {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("get %s: status %d, want %d (%s)", url, resp.StatusCode, wantStatus, body)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
}

func TestBalanceFormatsDivisibleAmounts(t *testing.T) {
	srv, _ := newTestServer(t)
	var out struct {
		Balance  string `json:"balance"`
		Reserved string `json:"reserved"`
	}
	getJSON(t, srv.URL+"/v1/balance/"+issuer+"/1", http.StatusOK, &out)
	// 90 issued, 5 reserved on the book.
	if out.Balance != "85.00000000" {
		t.Fatalf("balance %q", out.Balance)
	}
	if out.Reserved != "5.00000000" {
		t.Fatalf("reserved %q", out.Reserved)
	}

	getJSON(t, srv.URL+"/v1/balance/"+issuer+"/2", http.StatusOK, &out)
	if out.Balance != "1000" {
		t.Fatalf("indivisible balance %q", out.Balance)
	}
}

func TestPropertyEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)
	var meta struct {
		ID          uint32 `json:"propertyid"`
		Name        string `json:"name"`
		Divisible   bool   `json:"divisible"`
		TotalTokens string `json:"totaltokens"`
	}
	getJSON(t, srv.URL+"/v1/property/1", http.StatusOK, &meta)
	if meta.ID != 1 || meta.Name != "TestCoin" || !meta.Divisible || meta.TotalTokens != "90.00000000" {
		t.Fatalf("unexpected property: %+v", meta)
	}

	getJSON(t, srv.URL+"/v1/property/99", http.StatusNotFound, nil)
	getJSON(t, srv.URL+"/v1/property/notanumber", http.StatusBadRequest, nil)

	var ids []uint32
	getJSON(t, srv.URL+"/v1/properties?ecosystem=main", http.StatusOK, &ids)
	if len(ids) != 2 || ids[0] != 1 || ids[1] != 2 {
		t.Fatalf("unexpected ids: %v", ids)
	}
	getJSON(t, srv.URL+"/v1/properties?ecosystem=test", http.StatusOK, &ids)
	if len(ids) != 0 {
		t.Fatalf("test ecosystem not empty: %v", ids)
	}
}

func TestOrderBookEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	var book []struct {
		TxID            string `json:"txid"`
		AmountRemaining string `json:"amountremaining"`
		AmountToFill    string `json:"amounttofill"`
	}
	getJSON(t, srv.URL+"/v1/metadex/book/1", http.StatusOK, &book)
	if len(book) != 1 || book[0].TxID != "t1" {
		t.Fatalf("unexpected book: %+v", book)
	}
	if book[0].AmountRemaining != "5.00000000" || book[0].AmountToFill != "10" {
		t.Fatalf("unexpected amounts: %+v", book[0])
	}

	getJSON(t, srv.URL+"/v1/metadex/book/1?desired=9", http.StatusOK, &book)
	if len(book) != 0 {
		t.Fatalf("filter ignored: %+v", book)
	}
}

func TestFeeEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)
	var trigger map[string]string
	getJSON(t, srv.URL+"/v1/fees/trigger/1", http.StatusOK, &trigger)
	// 90 * 10^8 base units / 100000.
	if trigger["feetrigger"] != "0.00090000" {
		t.Fatalf("unexpected trigger: %v", trigger)
	}

	var share map[string]string
	getJSON(t, srv.URL+"/v1/fees/share/"+issuer+"/1", http.StatusOK, &share)
	if share["feeshare"] != "100.0000%" {
		t.Fatalf("unexpected share: %v", share)
	}
	getJSON(t, srv.URL+"/v1/fees/share/cch1stranger/1", http.StatusOK, &share)
	if share["feeshare"] != "0.0000%" {
		t.Fatalf("unexpected stranger share: %v", share)
	}

	getJSON(t, srv.URL+"/v1/fees/distribution/1", http.StatusNotFound, nil)
}

func TestConsensusHashEndpoints(t *testing.T) {
	srv, p := newTestServer(t)
	var out struct {
		Block int64  `json:"block"`
		Hash  string `json:"consensushash"`
	}
	getJSON(t, srv.URL+"/v1/consensus/hash", http.StatusOK, &out)
	if out.Block != p.Tip() {
		t.Fatalf("block %d, want %d", out.Block, p.Tip())
	}
	if len(out.Hash) != 64 {
		t.Fatalf("digest %q", out.Hash)
	}

	var mdex struct {
		Hash string `json:"metadexhash"`
	}
	getJSON(t, srv.URL+"/v1/consensus/metadex-hash", http.StatusOK, &mdex)
	if len(mdex.Hash) != 64 {
		t.Fatalf("digest %q", mdex.Hash)
	}
	getJSON(t, srv.URL+"/v1/consensus/metadex-hash?property=nope", http.StatusBadRequest, nil)
}

func TestTipEndpoint(t *testing.T) {
	srv, p := newTestServer(t)
	var out map[string]int64
	getJSON(t, srv.URL+"/v1/tip", http.StatusOK, &out)
	if out["block"] != p.Tip() {
		t.Fatalf("tip %d, want %d", out["block"], p.Tip())
	}
}
