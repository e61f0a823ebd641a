package models

// All lists every model, in dependency order, for schema bootstrapping in tests.
func All() []any {
	return []any{
		&Product{},
		&InventoryRecord{},
		&Coupon{},
		&LedgerAccount{},
		&LedgerEntry{},
		&Cart{},
		&CartLine{},
		&Order{},
		&OrderLine{},
		&PaymentIntent{},
		&ReturnRequest{},
		&ReturnItem{},
		&OutboxEvent{},
		&OutboxDLQ{},
	}
}
