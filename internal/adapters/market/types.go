package market

// Wire DTOs for the CLOB API. Kept private to this package; trading.go and
// clob.go convert them into domain types.

type orderBookRequest struct {
	TokenID string `json:"token_id"`
}

type orderBookResponse struct {
	AssetID string         `json:"asset_id"`
	Bids    []bookEntryRaw `json:"bids"`
	Asks    []bookEntryRaw `json:"asks"`
}

type bookEntryRaw struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

type clobOrderRequest struct {
	Order     clobOrderBody `json:"order"`
	Owner     string        `json:"owner"`
	OrderType string        `json:"orderType"`
}

type clobOrderBody struct {
	Salt          string `json:"salt"`
	Maker         string `json:"maker"`
	Signer        string `json:"signer"`
	Taker         string `json:"taker"`
	TokenID       string `json:"tokenId"`
	MakerAmount   string `json:"makerAmount"`
	TakerAmount   string `json:"takerAmount"`
	Expiration    string `json:"expiration"`
	Nonce         string `json:"nonce"`
	FeeRateBps    string `json:"feeRateBps"`
	Side          string `json:"side"`
	SignatureType int    `json:"signatureType"`
	Signature     string `json:"signature"`
}

type clobOrderResponse struct {
	ErrorMsg     string `json:"errorMsg"`
	OrderID      string `json:"orderID"`
	TakingAmount string `json:"takingAmount"`
	MakingAmount string `json:"makingAmount"`
	Status       string `json:"status"`
	Success      bool   `json:"success"`
}

type clobOrderStateResponse struct {
	ID             string `json:"id"`
	Status         string `json:"status"`
	OriginalSize   string `json:"original_size"`
	SizeMatched    string `json:"size_matched"`
	Price          string `json:"price"`
	MakerFeeBps    string `json:"fee_rate_bps"`
}

type clobNegRiskResponse struct {
	NegRisk bool `json:"neg_risk"`
}
