package documents

// Kind identifies a document type.
type Kind string

const (
	KindPurchaseOrder Kind = "PURCHASE_ORDER"
	KindQuotation     Kind = "QUOTATION"
	KindInvoice       Kind = "INVOICE"
	KindPOSSale       Kind = "POS_SALE"
)

// Kinds lists every document type in display order.
var Kinds = []Kind{KindPurchaseOrder, KindQuotation, KindInvoice, KindPOSSale}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindPurchaseOrder, KindQuotation, KindInvoice, KindPOSSale:
		return true
	}
	return false
}

// Path is the REST collection path of the kind.
func (k Kind) Path() string {
	switch k {
	case KindPurchaseOrder:
		return "/purchase-orders"
	case KindQuotation:
		return "/quotations"
	case KindInvoice:
		return "/invoices"
	case KindPOSSale:
		return "/pos/sales"
	}
	return ""
}

// NumberPrefix prefixes generated document numbers.
func (k Kind) NumberPrefix() string {
	switch k {
	case KindPurchaseOrder:
		return "PO"
	case KindQuotation:
		return "QT"
	case KindInvoice:
		return "INV"
	case KindPOSSale:
		return "POS"
	}
	return "DOC"
}
