package domain

// Customer identifies who is validating or redeeming.
type Customer struct {
	ID       string         `json:"id"`
	SourceID string         `json:"source_id,omitempty"`
	Email    string         `json:"email,omitempty"`
	Segments []string       `json:"segments,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Identity returns the id redemptions are counted against: ID, else SourceID.
// It is empty for a nil customer.
func (c *Customer) Identity() string {
	if c == nil {
		return ""
	}
	if c.ID != "" {
		return c.ID
	}
	return c.SourceID
}

// OrderItem is one line of the order under validation.
type OrderItem struct {
	ProductID string `json:"product_id,omitempty"`
	SKU       string `json:"sku,omitempty"`
	Quantity  int    `json:"quantity"`
	Price     int64  `json:"price"`
}

// Order is the order context supplied with a request. Amount is in minor units.
type Order struct {
	ID       string         `json:"id,omitempty"`
	Amount   int64          `json:"amount"`
	Items    []OrderItem    `json:"items,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// OrderLine is the quantity x price breakdown of one order item.
type OrderLine struct {
	ProductID string `json:"product_id,omitempty"`
	SKU       string `json:"sku,omitempty"`
	Quantity  int    `json:"quantity"`
	Price     int64  `json:"price"`
	Amount    int64  `json:"amount"`
}

// OrderSummary is the order recomputed against the applied redeemables.
type OrderSummary struct {
	Amount            int64 `json:"amount"`
	DiscountAmount    int64 `json:"discount_amount"`
	GiftCreditsAmount int64 `json:"gift_credits_amount"`
	TotalAmount       int64 `json:"total_amount"`
}
