package core

import "cchlayer/ledger"

// Intent is one already-decoded overlay transaction delivered by the chain
// feed. The variants form a sealed union: the block processor switches over
// them exhaustively, so adding a kind is a compile-time-checked change.
type Intent interface {
	Kind() string
	Sender() string
}

// BaseIntent carries the fields every intent shares.
type BaseIntent struct {
	TxID          string
	SenderAddress string
}

func (b BaseIntent) Sender() string { return b.SenderAddress }

// DExAction selects the offer state transition a DExSell intent requests.
type DExAction uint8

const (
	DExActionNew DExAction = iota + 1
	DExActionUpdate
	DExActionCancel
)

// SimpleSend transfers tokens between available balances.
type SimpleSend struct {
	BaseIntent
	Recipient string
	Property  uint32
	Amount    int64
}

func (SimpleSend) Kind() string { return "simple-send" }

// SendAll transfers every available balance the sender holds in one
// ecosystem.
type SendAll struct {
	BaseIntent
	Recipient string
	Ecosystem ledger.Ecosystem
}

func (SendAll) Kind() string { return "send-all" }

// IssuanceFixed creates a property with a fixed supply credited to the
// issuer.
type IssuanceFixed struct {
	BaseIntent
	Ecosystem ledger.Ecosystem
	Divisible bool
	Name      string
	URL       string
	Data      string
	Amount    int64
}

func (IssuanceFixed) Kind() string { return "issuance-fixed" }

// SendToOwners distributes tokens from the sender pro-rata among the current
// holders of a property. The sender never receives a share of their own send.
type SendToOwners struct {
	BaseIntent
	Property uint32
	Amount   int64
	// DistributionProperty selects whose holders receive the tokens; zero
	// means the holders of the sent property itself.
	DistributionProperty uint32
}

func (SendToOwners) Kind() string { return "send-to-owners" }

// IssuanceCrowdsale creates a variable-supply property that mints tokens as
// participants contribute the desired property to the issuer.
type IssuanceCrowdsale struct {
	BaseIntent
	Ecosystem       ledger.Ecosystem
	Divisible       bool
	Name            string
	URL             string
	Data            string
	DesiredProperty uint32
	TokensPerUnit   int64
	Deadline        int64 // block height at which the sale closes
}

func (IssuanceCrowdsale) Kind() string { return "issuance-crowdsale" }

// CrowdsaleParticipate contributes the crowdsale's desired property to the
// issuer in exchange for freshly minted tokens.
type CrowdsaleParticipate struct {
	BaseIntent
	Property uint32 // the crowdsale property
	Amount   int64  // contribution, in base units of the desired property
}

func (CrowdsaleParticipate) Kind() string { return "crowdsale-participate" }

// CrowdsaleClose ends the sender's crowdsale before its deadline.
type CrowdsaleClose struct {
	BaseIntent
	Property uint32
}

func (CrowdsaleClose) Kind() string { return "crowdsale-close" }

// IssuanceManaged creates a property whose supply is managed by grant and
// revoke.
type IssuanceManaged struct {
	BaseIntent
	Ecosystem ledger.Ecosystem
	Divisible bool
	Name      string
	URL       string
	Data      string
}

func (IssuanceManaged) Kind() string { return "issuance-managed" }

// Grant mints tokens of a managed property to a recipient.
type Grant struct {
	BaseIntent
	Property  uint32
	Recipient string
	Amount    int64
}

func (Grant) Kind() string { return "grant" }

// Revoke burns tokens of a managed property from the sender's balance.
type Revoke struct {
	BaseIntent
	Property uint32
	Amount   int64
}

func (Revoke) Kind() string { return "revoke" }

// ChangeIssuer hands control of a property to a new issuer address.
type ChangeIssuer struct {
	BaseIntent
	Property  uint32
	NewIssuer string
}

func (ChangeIssuer) Kind() string { return "change-issuer" }

// EnableFreezing allows the issuer to freeze holders of a managed property.
type EnableFreezing struct {
	BaseIntent
	Property uint32
}

func (EnableFreezing) Kind() string { return "enable-freezing" }

// DisableFreezing revokes the freezing capability and thaws every frozen
// balance of the property.
type DisableFreezing struct {
	BaseIntent
	Property uint32
}

func (DisableFreezing) Kind() string { return "disable-freezing" }

// Freeze moves a holder's available balance of the property into the frozen
// bucket.
type Freeze struct {
	BaseIntent
	Property uint32
	Target   string
}

func (Freeze) Kind() string { return "freeze" }

// Unfreeze releases a holder's frozen balance back to available.
type Unfreeze struct {
	BaseIntent
	Property uint32
	Target   string
}

func (Unfreeze) Kind() string { return "unfreeze" }

// DExSell creates, updates or cancels the sender's token-for-CCH offer.
type DExSell struct {
	BaseIntent
	Property      uint32
	AmountForSale int64
	AmountDesired int64
	PaymentWindow int64
	MinAcceptFee  int64
	Action        DExAction
}

func (DExSell) Kind() string { return "dex-sell" }

// DExAccept reserves part of a seller's offer for the sender.
type DExAccept struct {
	BaseIntent
	Seller   string
	Property uint32
	Amount   int64
	Fee      int64 // transaction fee paid, checked against the offer's minimum
}

func (DExAccept) Kind() string { return "dex-accept" }

// DExPayment reports a verified CCH payment from the sender (buyer) to a
// seller, settling an open accept.
type DExPayment struct {
	BaseIntent
	Seller   string
	Property uint32
	Amount   int64
}

func (DExPayment) Kind() string { return "dex-payment" }

// MetaDExTrade offers one property for another on the order book.
type MetaDExTrade struct {
	BaseIntent
	PropertyForSale uint32
	AmountForSale   int64
	PropertyDesired uint32
	AmountDesired   int64
}

func (MetaDExTrade) Kind() string { return "metadex-trade" }

// MetaDExCancelPrice cancels the sender's orders in a pair at an exact price.
type MetaDExCancelPrice struct {
	BaseIntent
	PropertyForSale uint32
	AmountForSale   int64
	PropertyDesired uint32
	AmountDesired   int64
}

func (MetaDExCancelPrice) Kind() string { return "metadex-cancel-price" }

// MetaDExCancelPair cancels the sender's orders in a pair at any price.
type MetaDExCancelPair struct {
	BaseIntent
	PropertyForSale uint32
	PropertyDesired uint32
}

func (MetaDExCancelPair) Kind() string { return "metadex-cancel-pair" }

// MetaDExCancelEcosystem cancels every order the sender holds in an
// ecosystem.
type MetaDExCancelEcosystem struct {
	BaseIntent
	Ecosystem ledger.Ecosystem
}

func (MetaDExCancelEcosystem) Kind() string { return "metadex-cancel-ecosystem" }
