// Package rpc exposes the read-only query surface over HTTP. Handlers only
// read processor state; every mutation enters the system through the block
// feed. Display formatting of divisible amounts lives here and nowhere else.
package rpc

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"cchlayer/core"
	"cchlayer/ledger"
)

// Server wires the processor's query API to HTTP routes.
type Server struct {
	processor *core.Processor
}

// NewServer returns a server bound to the processor.
func NewServer(p *core.Processor) *Server {
	return &Server{processor: p}
}

// Router builds the chi router with every query route mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/v1", func(r chi.Router) {
		r.Get("/balance/{address}/{property}", s.handleBalance)
		r.Get("/property/{property}", s.handleProperty)
		r.Get("/properties", s.handleProperties)
		r.Get("/dex/offer/{seller}/{property}", s.handleOffer)
		r.Get("/dex/accept/{seller}/{property}/{buyer}", s.handleAccept)
		r.Get("/metadex/book/{property}", s.handleOrderBook)
		r.Get("/fees/cache/{property}", s.handleFeeCache)
		r.Get("/fees/trigger/{property}", s.handleFeeTrigger)
		r.Get("/fees/share/{address}/{property}", s.handleFeeShare)
		r.Get("/fees/distribution/{id}", s.handleFeeDistribution)
		r.Get("/fees/distributions/{property}", s.handleFeeDistributions)
		r.Get("/consensus/hash", s.handleConsensusHash)
		r.Get("/consensus/metadex-hash", s.handleMetaDExHash)
		r.Get("/tip", s.handleTip)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func propertyParam(r *http.Request, name string) (uint32, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid property id %q", raw)
	}
	return uint32(id), nil
}

// formatAmount renders a base-unit amount for display. Divisible properties
// carry eight implicit decimals. This is the only place amounts become
// strings; consensus logic never sees them.
func formatAmount(amount int64, divisible bool) string {
	if !divisible {
		return strconv.FormatInt(amount, 10)
	}
	whole := amount / 100000000
	frac := amount % 100000000
	return fmt.Sprintf("%d.%08d", whole, frac)
}

func (s *Server) divisible(property uint32) bool {
	meta, err := s.processor.GetProperty(property)
	return err == nil && meta.Divisible
}

type balanceResponse struct {
	Address  string `json:"address"`
	Property uint32 `json:"property"`
	Balance  string `json:"balance"`
	Reserved string `json:"reserved"`
	Frozen   string `json:"frozen"`
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	property, err := propertyParam(r, "property")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	address := chi.URLParam(r, "address")
	tally := s.processor.GetBalance(address, property)
	div := s.divisible(property)
	writeJSON(w, http.StatusOK, balanceResponse{
		Address:  address,
		Property: property,
		Balance:  formatAmount(tally.Available, div),
		Reserved: formatAmount(tally.Reserved(), div),
		Frozen:   formatAmount(tally.Frozen, div),
	})
}

type propertyResponse struct {
	ID              uint32 `json:"propertyid"`
	Name            string `json:"name"`
	URL             string `json:"url,omitempty"`
	Data            string `json:"data,omitempty"`
	Divisible       bool   `json:"divisible"`
	Issuer          string `json:"issuer"`
	Delegate        string `json:"delegate,omitempty"`
	Managed         bool   `json:"managedissuance"`
	FreezingEnabled bool   `json:"freezingenabled"`
	TotalTokens     string `json:"totaltokens"`

	CrowdsaleActive   bool   `json:"crowdsaleactive,omitempty"`
	CrowdsaleDesired  uint32 `json:"crowdsaledesiredproperty,omitempty"`
	CrowdsaleRate     string `json:"crowdsaletokensperunit,omitempty"`
	CrowdsaleDeadline int64  `json:"crowdsaledeadline,omitempty"`
}

func (s *Server) handleProperty(w http.ResponseWriter, r *http.Request) {
	property, err := propertyParam(r, "property")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	meta, err := s.processor.GetProperty(property)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	resp := propertyResponse{
		ID:              meta.ID,
		Name:            meta.Name,
		URL:             meta.URL,
		Data:            meta.Data,
		Divisible:       meta.Divisible,
		Issuer:          meta.Issuer,
		Delegate:        meta.Delegate,
		Managed:         meta.Managed,
		FreezingEnabled: meta.FreezingEnabled,
		TotalTokens:     formatAmount(meta.TotalTokens, meta.Divisible),
	}
	if meta.CrowdsaleDesired != 0 {
		resp.CrowdsaleActive = meta.CrowdsaleActive
		resp.CrowdsaleDesired = meta.CrowdsaleDesired
		resp.CrowdsaleRate = strconv.FormatInt(meta.CrowdsaleRate, 10)
		resp.CrowdsaleDeadline = meta.CrowdsaleDeadline
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleProperties(w http.ResponseWriter, r *http.Request) {
	eco := ledger.Ecosystem(0)
	switch r.URL.Query().Get("ecosystem") {
	case "main":
		eco = ledger.EcosystemMain
	case "test":
		eco = ledger.EcosystemTest
	}
	writeJSON(w, http.StatusOK, s.processor.ListProperties(eco))
}

type offerResponse struct {
	Seller        string `json:"seller"`
	Property      uint32 `json:"propertyid"`
	AmountForSale string `json:"amountforsale"`
	AmountDesired string `json:"amountdesired"`
	PaymentWindow int64  `json:"paymentwindow"`
	MinAcceptFee  string `json:"minimumacceptfee"`
	Block         int64  `json:"block"`
}

func (s *Server) handleOffer(w http.ResponseWriter, r *http.Request) {
	property, err := propertyParam(r, "property")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	seller := chi.URLParam(r, "seller")
	offer, ok := s.processor.GetOffer(seller, property)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("no offer by %s for property %d", seller, property))
		return
	}
	div := s.divisible(property)
	writeJSON(w, http.StatusOK, offerResponse{
		Seller:        offer.Seller,
		Property:      offer.Property,
		AmountForSale: formatAmount(offer.AmountForSale, div),
		AmountDesired: formatAmount(offer.AmountDesired, true),
		PaymentWindow: offer.PaymentWindowBlocks,
		MinAcceptFee:  formatAmount(offer.MinAcceptFee, true),
		Block:         offer.Block,
	})
}

type acceptResponse struct {
	Seller         string `json:"seller"`
	Buyer          string `json:"buyer"`
	Property       uint32 `json:"propertyid"`
	AmountReserved string `json:"amountreserved"`
	AcceptBlock    int64  `json:"acceptblock"`
	BlocksLeft     int64  `json:"blocksleft"`
}

func (s *Server) handleAccept(w http.ResponseWriter, r *http.Request) {
	property, err := propertyParam(r, "property")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	seller := chi.URLParam(r, "seller")
	buyer := chi.URLParam(r, "buyer")
	accept, ok := s.processor.GetAccept(seller, property, buyer)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("no accept by %s on %s for property %d", buyer, seller, property))
		return
	}
	blocksLeft := accept.AcceptBlock + accept.PaymentWindowBlocks - s.processor.Tip()
	if blocksLeft < 0 {
		blocksLeft = 0
	}
	writeJSON(w, http.StatusOK, acceptResponse{
		Seller:         accept.Seller,
		Buyer:          accept.Buyer,
		Property:       accept.Property,
		AmountReserved: formatAmount(accept.AmountReserved, s.divisible(property)),
		AcceptBlock:    accept.AcceptBlock,
		BlocksLeft:     blocksLeft,
	})
}

type orderResponse struct {
	TxID            string `json:"txid"`
	Seller          string `json:"seller"`
	PropertyForSale uint32 `json:"propertyidforsale"`
	AmountForSale   string `json:"amountforsale"`
	AmountRemaining string `json:"amountremaining"`
	PropertyDesired uint32 `json:"propertyiddesired"`
	AmountDesired   string `json:"amountdesired"`
	AmountToFill    string `json:"amounttofill"`
	Block           int64  `json:"block"`
	Position        uint32 `json:"positioninblock"`
}

func (s *Server) handleOrderBook(w http.ResponseWriter, r *http.Request) {
	property, err := propertyParam(r, "property")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var desired *uint32
	if raw := r.URL.Query().Get("desired"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid desired property %q", raw))
			return
		}
		d := uint32(id)
		desired = &d
	}
	orders := s.processor.ListOrderBook(property, desired)
	out := make([]orderResponse, len(orders))
	divForSale := s.divisible(property)
	for i, o := range orders {
		out[i] = orderResponse{
			TxID:            o.TxID,
			Seller:          o.Seller,
			PropertyForSale: o.PropertyForSale,
			AmountForSale:   formatAmount(o.AmountForSale, divForSale),
			AmountRemaining: formatAmount(o.AmountRemaining, divForSale),
			PropertyDesired: o.PropertyDesired,
			AmountDesired:   formatAmount(o.AmountDesired, s.divisible(o.PropertyDesired)),
			AmountToFill:    formatAmount(o.AmountToFill, s.divisible(o.PropertyDesired)),
			Block:           o.Block,
			Position:        o.Position,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

type feeCacheEntryResponse struct {
	Block  int64  `json:"block"`
	Amount string `json:"amount"`
}

func (s *Server) handleFeeCache(w http.ResponseWriter, r *http.Request) {
	property, err := propertyParam(r, "property")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	div := s.divisible(property)
	entries := s.processor.GetFeeCache(property)
	out := make([]feeCacheEntryResponse, len(entries))
	for i, entry := range entries {
		out[i] = feeCacheEntryResponse{Block: entry.Block, Amount: formatAmount(entry.Amount, div)}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleFeeTrigger(w http.ResponseWriter, r *http.Request) {
	property, err := propertyParam(r, "property")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	trigger, err := s.processor.GetFeeTrigger(property)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"propertyid": strconv.FormatUint(uint64(property), 10),
		"feetrigger": formatAmount(trigger, s.divisible(property)),
	})
}

func (s *Server) handleFeeShare(w http.ResponseWriter, r *http.Request) {
	property, err := propertyParam(r, "property")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	address := chi.URLParam(r, "address")
	weight, total := s.processor.GetFeeShare(address, property)
	share := "0.0000%"
	if total > 0 {
		// Display-only percentage with four decimals.
		share = fmt.Sprintf("%.4f%%", float64(weight)/float64(total)*100)
	}
	writeJSON(w, http.StatusOK, map[string]string{"address": address, "feeshare": share})
}

type distributionResponse struct {
	ID         uint32              `json:"distributionid"`
	Property   uint32              `json:"propertyid"`
	Block      int64               `json:"block"`
	Total      string              `json:"totaldistributed"`
	Recipients []map[string]string `json:"recipients"`
}

func (s *Server) handleFeeDistribution(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid distribution id %q", raw))
		return
	}
	record, ok := s.processor.GetFeeDistribution(uint32(id))
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("no distribution %d", id))
		return
	}
	div := s.divisible(record.Property)
	out := distributionResponse{
		ID:       record.ID,
		Property: record.Property,
		Block:    record.Block,
		Total:    formatAmount(record.Total, div),
	}
	for _, rec := range record.Recipients {
		out.Recipients = append(out.Recipients, map[string]string{
			"address": rec.Address,
			"amount":  formatAmount(rec.Amount, div),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleFeeDistributions(w http.ResponseWriter, r *http.Request) {
	property, err := propertyParam(r, "property")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, s.processor.GetFeeDistributionsForProperty(property))
}

func (s *Server) handleConsensusHash(w http.ResponseWriter, _ *http.Request) {
	digest := s.processor.ConsensusHash()
	writeJSON(w, http.StatusOK, map[string]any{
		"block":         s.processor.Tip(),
		"consensushash": hex.EncodeToString(digest[:]),
	})
}

func (s *Server) handleMetaDExHash(w http.ResponseWriter, r *http.Request) {
	var filter uint32
	if raw := r.URL.Query().Get("property"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid property %q", raw))
			return
		}
		filter = uint32(id)
	}
	digest := s.processor.MetaDExHash(filter)
	writeJSON(w, http.StatusOK, map[string]any{
		"block":       s.processor.Tip(),
		"metadexhash": hex.EncodeToString(digest[:]),
	})
}

func (s *Server) handleTip(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int64{"block": s.processor.Tip()})
}
