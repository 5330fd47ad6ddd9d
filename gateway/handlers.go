package gateway

import (
	// Go Internal Packages
	"fmt"

	// Local Packages
	models "termbridge/models"

	// External Packages
	"github.com/gin-gonic/gin"
)

// Sale runs a credit sale.
func (g *Gateway) Sale(c *gin.Context) {
	body, ok := parseBody(c, "Sale")
	if !ok {
		return
	}
	payload, err := buildSale(body, false)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	g.send(c, "Sale", body, payload)
}

// SaleLodging runs a credit sale carrying a lodging folio.
func (g *Gateway) SaleLodging(c *gin.Context) {
	body, ok := parseBody(c, "Sale")
	if !ok {
		return
	}
	payload, err := buildSale(body, true)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	g.send(c, "Sale", body, payload)
}

// PreAuth places an authorization hold.
func (g *Gateway) PreAuth(c *gin.Context) {
	body, ok := parseBody(c, "PreAuth")
	if !ok {
		return
	}
	payload, err := buildPreAuth(body)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	g.send(c, "PreAuth", body, payload)
}

// AuthCompletion captures a prior authorization hold.
func (g *Gateway) AuthCompletion(c *gin.Context) {
	body, ok := parseBody(c, "AuthCompletion")
	if !ok {
		return
	}
	payload, err := buildAuthCompletion(body)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	g.send(c, "AuthCompletion", body, payload)
}

// Void reverses a transaction in the open batch.
func (g *Gateway) Void(c *gin.Context) {
	body, ok := parseBody(c, "Void")
	if !ok {
		return
	}
	payload, err := buildReference(body)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	g.send(c, "Void", body, payload)
}

// Refund credits the card, referenced or unreferenced.
func (g *Gateway) Refund(c *gin.Context) {
	body, ok := parseBody(c, "Refund")
	if !ok {
		return
	}
	payload, err := buildRefund(body)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	g.send(c, "Refund", body, payload)
}

// TipAdjust rewrites the tip on an approved sale.
func (g *Gateway) TipAdjust(c *gin.Context) {
	body, ok := parseBody(c, "TipAdjust")
	if !ok {
		return
	}
	payload, err := buildTipAdjust(body)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	g.send(c, "TipAdjust", body, payload)
}

// BatchClose settles the open batch. The body may rename the command
// to any batch close alias the terminal accepts.
func (g *Gateway) BatchClose(c *gin.Context) {
	body, ok := parseBody(c, "BatchClose")
	if !ok {
		return
	}
	command := body.String("command")
	if command == "" {
		command = "EOD"
	}
	g.send(c, command, body, nil)
}

// Command is the generic passthrough for anything the named endpoints
// do not cover, ForceSale and the inquiry commands included. The data
// block rides to the terminal untouched.
func (g *Gateway) Command(c *gin.Context) {
	body, ok := parseBody(c, "")
	if !ok {
		return
	}
	command := body.String("command")
	if command == "" {
		badRequest(c, "command is required")
		return
	}

	var payload any
	if data, ok := body.Object("data"); ok {
		payload = data
	}
	g.send(c, command, body, payload)
}

// buildSale shapes the sale payload. Lodging sales additionally demand
// the lodging block.
func buildSale(body *models.CommandBody, lodging bool) (*models.CommandPayload, error) {
	tb := &models.TransactionBlock{}
	if err := amountInto(body, "baseAmount", true, &tb.BaseAmount); err != nil {
		return nil, err
	}
	for _, f := range []struct {
		key string
		dst *string
	}{
		{"tipAmount", &tb.TipAmount},
		{"taxAmount", &tb.TaxAmount},
		{"cashBackAmount", &tb.CashBackAmount},
	} {
		if err := amountInto(body, f.key, false, f.dst); err != nil {
			return nil, err
		}
	}
	tb.InvoiceNbr = body.String("invoiceNbr")
	tb.CardNumber = body.String("cardNumber")

	payload := &models.CommandPayload{Transaction: tb, Params: saleParams(body)}
	if lodging {
		block, ok := body.Object("lodging")
		if !ok {
			return nil, fmt.Errorf("lodging block is required")
		}
		info, err := models.LodgingFromObject(block)
		if err != nil {
			return nil, err
		}
		payload.Lodging = info
	}
	return payload, nil
}

// saleParams folds the 0/1 modifiers; taxIndicator defaults to "0".
func saleParams(body *models.CommandBody) *models.TransactionParams {
	params := &models.TransactionParams{
		AllowPartialAuth: body.Flag("allowPartialAuth"),
		AllowDuplicate:   body.Flag("allowDuplicate"),
		TaxIndicator:     body.String("taxIndicator"),
		ClerkID:          body.String("clerkId"),
	}
	if params.TaxIndicator == "" {
		params.TaxIndicator = "0"
	}
	return params
}

func buildPreAuth(body *models.CommandBody) (*models.CommandPayload, error) {
	tb := &models.TransactionBlock{}
	if err := amountInto(body, "amount", true, &tb.Amount); err != nil {
		return nil, err
	}
	if err := amountInto(body, "preAuthAmount", false, &tb.PreAuthAmount); err != nil {
		return nil, err
	}
	tb.InvoiceNbr = body.String("invoiceNbr")
	tb.CardNumber = body.String("cardNumber")

	payload := &models.CommandPayload{Transaction: tb}
	if block, ok := body.Object("lodging"); ok {
		info, err := models.LodgingFromObject(block)
		if err != nil {
			return nil, err
		}
		payload.Lodging = info
	}
	return payload, nil
}

func buildAuthCompletion(body *models.CommandBody) (*models.CommandPayload, error) {
	tb, err := referenceBlock(body)
	if err != nil {
		return nil, err
	}
	if err := amountInto(body, "amount", true, &tb.Amount); err != nil {
		return nil, err
	}
	if err := amountInto(body, "tipAmount", false, &tb.TipAmount); err != nil {
		return nil, err
	}
	return &models.CommandPayload{Transaction: tb}, nil
}

func buildReference(body *models.CommandBody) (*models.CommandPayload, error) {
	tb, err := referenceBlock(body)
	if err != nil {
		return nil, err
	}
	return &models.CommandPayload{Transaction: tb}, nil
}

func buildRefund(body *models.CommandBody) (*models.CommandPayload, error) {
	tb := &models.TransactionBlock{
		TranNo:          body.String("tranNo"),
		ReferenceNumber: body.String("referenceNumber"),
		CardNumber:      body.String("cardNumber"),
	}
	if err := amountInto(body, "totalAmount", true, &tb.TotalAmount); err != nil {
		return nil, err
	}
	return &models.CommandPayload{Transaction: tb}, nil
}

func buildTipAdjust(body *models.CommandBody) (*models.CommandPayload, error) {
	tb, err := referenceBlock(body)
	if err != nil {
		return nil, err
	}
	if err := amountInto(body, "tipAmount", true, &tb.TipAmount); err != nil {
		return nil, err
	}
	return &models.CommandPayload{Transaction: tb}, nil
}

// referenceBlock requires one of tranNo or referenceNumber.
func referenceBlock(body *models.CommandBody) (*models.TransactionBlock, error) {
	tb := &models.TransactionBlock{
		TranNo:          body.String("tranNo"),
		ReferenceNumber: body.String("referenceNumber"),
	}
	if tb.Identifier() == "" {
		return nil, fmt.Errorf("tranNo or referenceNumber is required")
	}
	return tb, nil
}

// amountInto normalizes one amount field into dst; required fields must
// be present and parseable.
func amountInto(body *models.CommandBody, key string, required bool, dst *string) error {
	value, present, err := body.Amount(key)
	if err != nil {
		return err
	}
	if !present {
		if required {
			return fmt.Errorf("%s is required", key)
		}
		return nil
	}
	*dst = value
	return nil
}
