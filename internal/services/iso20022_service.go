package services

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/moov-io/iso20022/pkg/common"
	"github.com/moov-io/iso20022/pkg/pacs_v08"

	"github.com/walletverify/backend/internal/models"
)

const institutionBIC = "WALLETVF"

// ISO20022Service renders executed wallet transfers as pacs.008 credit
// transfer messages for downstream settlement export.
type ISO20022Service struct {
	bank *BankService
}

func NewISO20022Service(bank *BankService) *ISO20022Service {
	return &ISO20022Service{bank: bank}
}

// ExportTransaction exports a recorded transfer as ISO 20022 XML
// @Summary Export transfer as pacs.008
// @Description Render a recorded transaction as an ISO 20022 FIToFICustomerCreditTransfer message
// @Tags iso20022
// @Produce json
// @Security BearerAuth
// @Param txId path string true "Transaction ID"
// @Success 200 {object} object{messageType=string,xml=string}
// @Failure 404 {object} services.ErrorResponse
// @Failure 500 {object} services.ErrorResponse
// @Router /transfers/{txId}/iso20022 [get]
func (iso *ISO20022Service) ExportTransaction(w http.ResponseWriter, r *http.Request) {
	txID := chi.URLParam(r, "txId")

	tx, err := iso.bank.GetTransaction(r.Context(), txID)
	if err != nil {
		log.Printf("[ISO20022] fetching transaction %s: %v", txID, err)
		SendErrorResponse(w, "Failed to fetch transaction", http.StatusInternalServerError, nil)
		return
	}
	if tx == nil {
		SendErrorResponse(w, "Transaction not found", http.StatusNotFound, nil)
		return
	}

	doc, err := iso.CreatePacs008(tx)
	if err != nil {
		SendErrorResponse(w, err.Error(), http.StatusInternalServerError, nil)
		return
	}

	xmlData, err := iso.ConvertToXML(doc)
	if err != nil {
		SendErrorResponse(w, err.Error(), http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"messageType": "pacs.008.001.08",
		"xml":         xmlData,
	})
}

// CreatePacs008 builds a pacs.008 FIToFICustomerCreditTransfer message
// from a recorded transaction.
func (iso *ISO20022Service) CreatePacs008(tx *models.Transaction) (*pacs_v08.FIToFICustomerCreditTransferV08, error) {
	msgID := uuid.New().String()
	now := time.Now()

	endToEndID := tx.ClientTxID
	if endToEndID == "" {
		endToEndID = tx.ID
	}

	doc := &pacs_v08.FIToFICustomerCreditTransferV08{
		GrpHdr: pacs_v08.GroupHeader93{
			MsgId:   common.Max35Text(msgID),
			CreDtTm: common.ISODateTime(now),
			NbOfTxs: "1",
			TtlIntrBkSttlmAmt: &pacs_v08.ActiveCurrencyAndAmount{
				Ccy:   common.ActiveCurrencyCode(tx.Currency),
				Value: tx.Amount,
			},
			IntrBkSttlmDt: (*common.ISODate)(&now),
			SttlmInf: pacs_v08.SettlementInstruction7{
				SttlmMtd: "CLRG",
			},
		},
		CdtTrfTxInf: []pacs_v08.CreditTransferTransaction39{
			{
				PmtId: pacs_v08.PaymentIdentification7{
					InstrId:    &[]common.Max35Text{common.Max35Text(tx.ID)}[0],
					EndToEndId: common.Max35Text(endToEndID),
					TxId:       &[]common.Max35Text{common.Max35Text(tx.ID)}[0],
				},
				IntrBkSttlmAmt: pacs_v08.ActiveCurrencyAndAmount{
					Ccy:   common.ActiveCurrencyCode(tx.Currency),
					Value: tx.Amount,
				},
				IntrBkSttlmDt: (*common.ISODate)(&now),
				ChrgBr:        "SLEV",
				DbtrAgt: pacs_v08.BranchAndFinancialInstitutionIdentification6{
					FinInstnId: pacs_v08.FinancialInstitutionIdentification18{
						BICFI: &[]common.BICFIDec2014Identifier{common.BICFIDec2014Identifier(institutionBIC)}[0],
					},
				},
				Dbtr: pacs_v08.PartyIdentification135{
					Nm: &[]common.Max140Text{common.Max140Text(tx.PayerWalletID)}[0],
				},
				CdtrAgt: pacs_v08.BranchAndFinancialInstitutionIdentification6{
					FinInstnId: pacs_v08.FinancialInstitutionIdentification18{
						ClrSysMmbId: &pacs_v08.ClearingSystemMemberIdentification2{
							MmbId: common.Max35Text(bankCodeFromAccount(tx.DestinationAccount)),
						},
					},
				},
				Cdtr: pacs_v08.PartyIdentification135{
					Nm: &[]common.Max140Text{common.Max140Text(tx.DestinationAccount)}[0],
				},
			},
		},
	}

	return doc, nil
}

// bankCodeFromAccount extracts the 3-digit institution prefix of a
// CLABE account number.
func bankCodeFromAccount(account string) string {
	if len(account) < 3 {
		return account
	}
	return account[:3]
}

// ConvertToXML marshals an ISO 20022 document with the XML header.
func (iso *ISO20022Service) ConvertToXML(doc any) (string, error) {
	xmlData, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal XML: %w", err)
	}
	return xml.Header + string(xmlData), nil
}
