package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-settlement/api/responses"
	"github.com/angelmondragon/storefront-settlement/api/validators"
	"github.com/angelmondragon/storefront-settlement/internal/ledger"
	"github.com/angelmondragon/storefront-settlement/pkg/db/models"
	"github.com/angelmondragon/storefront-settlement/pkg/enums"
	"github.com/angelmondragon/storefront-settlement/pkg/logger"
)

const defaultStatementEntries = 20

// Wallet is the slice of the ledger exposed to shoppers.
type Wallet interface {
	Statement(ctx context.Context, userID uuid.UUID, kind enums.LedgerAccountKind, limit int) (*ledger.Statement, error)
	DebitWallet(ctx context.Context, input ledger.DebitInput) (*models.LedgerEntry, error)
}

// WalletStatement returns the wallet or loyalty balance with the latest entries.
func WalletStatement(svc Wallet, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := requireUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		kind := enums.LedgerAccountWallet
		if raw := strings.TrimSpace(r.URL.Query().Get("kind")); raw != "" {
			kind = enums.LedgerAccountKind(strings.ToLower(raw))
		}
		limit, err := validators.ParseQueryInt(r, "limit", defaultStatementEntries, 1, 100)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		statement, err := svc.Statement(r.Context(), userID, kind, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newStatementResponse(statement))
	}
}

type walletDebitRequest struct {
	Amount      decimal.Decimal `json:"amount" validate:"gt=0,cents"`
	ReferenceID *uuid.UUID      `json:"reference_id,omitempty"`
}

// WalletDebit spends wallet funds outside checkout.
func WalletDebit(svc Wallet, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := requireUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload walletDebitRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := ledger.DebitInput{UserID: userID, Amount: payload.Amount}
		if payload.ReferenceID != nil {
			input.ReferenceID = *payload.ReferenceID
		}
		entry, err := svc.DebitWallet(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newLedgerEntryResponse(*entry))
	}
}
