package rfq

import "time"

const defaultProductDetails = "No product details available"

// Inquiry is one request for quotation, sent unchanged to every supplier.
type Inquiry struct {
	BuyerID           string `json:"buyerId"`
	Category          string `json:"category"`
	Subcategory       string `json:"subcategory"`
	ProductDetails    string `json:"productDetails"`
	FileURL           string `json:"fileUrl,omitempty"`
	Size              string `json:"size,omitempty"`
	Color             string `json:"color,omitempty"`
	Shipping          string `json:"shipping,omitempty"`
	ShareBusinessCard bool   `json:"shareBusinessCard"`
}

type Supplier struct {
	ID   string `json:"supplierId"`
	Name string `json:"supplierName"`
}

// RFQ is the per-supplier copy of an inquiry.
type RFQ struct {
	ID       string
	Inquiry  Inquiry
	Supplier Supplier
	ChatID   string
	At       time.Time
}

type Created struct {
	RFQID       string
	ChatCreated bool
}

type Result struct {
	SupplierID  string `json:"supplierId"`
	RFQID       string `json:"rfqId,omitempty"`
	ChatID      string `json:"chatId"`
	ChatCreated bool   `json:"chatCreated"`
	Error       string `json:"error,omitempty"`
}

// Outcome lists one result per supplier. Failed is set when any supplier
// write failed; the writes that succeeded stay committed.
type Outcome struct {
	Results []Result `json:"results"`
	Failed  bool     `json:"failed"`
}

func ChatID(buyerID, supplierID string) string {
	return "chat_" + buyerID + "_" + supplierID
}
