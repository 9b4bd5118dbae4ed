package internal

import (
	"fmt"
	"paybox/entity"

	"github.com/shopspring/decimal"
)

const defaultDeliveryName = "delivery"

var hundred = decimal.NewFromInt(100)

// receiptFormat is the regional layout of a fiscal receipt.
type receiptFormat interface {
	line(item entity.LineItem, price decimal.Decimal) entity.ReceiptLine
	deliveryLine(name string, price decimal.Decimal) entity.ReceiptLine
	attach(params *entity.Params, receipt *entity.Receipt)
}

// ReceiptGenerator prices receipt lines so that they add up to the order total.
type ReceiptGenerator struct {
	conf entity.ReceiptConfig
}

func NewReceiptGenerator(conf entity.ReceiptConfig) *ReceiptGenerator {
	return &ReceiptGenerator{conf: conf}
}

// Generate applies the order discount to every line, rounding each price down
// to the cent, adds the optional delivery line and moves the remaining
// difference onto the first line.
func (g *ReceiptGenerator) Generate(order *entity.Order) (*entity.Receipt, error) {
	if order == nil {
		return nil, ErrInvalidOrder
	}
	total := order.TotalAmount()
	if !total.IsPositive() {
		return nil, fmt.Errorf("order %s: %w", order.Id, ErrDegenerateOrder)
	}
	format := g.format()
	paid := total.Sub(order.DiscountAmount())

	receipt := &entity.Receipt{Format: g.conf.Format}
	for _, item := range order.Items {
		if item.Quantity < 1 {
			return nil, fmt.Errorf("order %s: item %s quantity %d: %w", order.Id, item.Name, item.Quantity, ErrInvalidOrder)
		}
		unitPrice := decimal.NewFromFloat(item.Price)
		price := floorCents(unitPrice.Mul(paid), total)
		receipt.Lines = append(receipt.Lines, format.line(item, price))
	}

	if g.conf.InDelivery {
		name := order.ShippingMethod
		if name == "" {
			name = defaultDeliveryName
		}
		receipt.Lines = append(receipt.Lines, format.deliveryLine(name, order.ShippingAmount()))
	}

	if len(receipt.Lines) == 0 {
		return nil, fmt.Errorf("order %s has no receipt lines: %w", order.Id, ErrDegenerateOrder)
	}

	residual := total.Sub(receipt.Total())
	first := &receipt.Lines[0]
	first.Price = first.Price.Add(floorCents(residual, decimal.NewFromInt(int64(first.Quantity))))

	return receipt, nil
}

// Attach adds the receipt to the payment request in the configured layout.
func (g *ReceiptGenerator) Attach(params *entity.Params, receipt *entity.Receipt) {
	g.format().attach(params, receipt)
}

func (g *ReceiptGenerator) format() receiptFormat {
	switch g.conf.Format {
	case entity.ReceiptRegionalV2:
		return regionalFormat{conf: g.conf}
	case entity.ReceiptAlternateRegional:
		return alternateRegionalFormat{conf: g.conf}
	default:
		return legacyFormat{conf: g.conf}
	}
}

// floorCents returns floor(numerator / denominator * 100) / 100 computed
// with an exact integer quotient.
func floorCents(numerator, denominator decimal.Decimal) decimal.Decimal {
	quotient, remainder := numerator.Mul(hundred).QuoRem(denominator, 0)
	if remainder.Sign()*denominator.Sign() < 0 {
		quotient = quotient.Sub(decimal.NewFromInt(1))
	}
	return quotient.Div(hundred)
}

// legacyFormat sends a flat pg_receipt_positions list with one tax type.
type legacyFormat struct {
	conf entity.ReceiptConfig
}

func (f legacyFormat) line(item entity.LineItem, price decimal.Decimal) entity.ReceiptLine {
	return entity.ReceiptLine{
		Quantity: item.Quantity,
		Name:     item.Name,
		Price:    price,
		TaxCode:  f.conf.Tax,
	}
}

func (f legacyFormat) deliveryLine(name string, price decimal.Decimal) entity.ReceiptLine {
	tax := f.conf.DeliveryTax
	if tax == "" {
		tax = f.conf.Tax
	}
	return entity.ReceiptLine{
		Quantity: 1,
		Name:     name,
		Price:    price,
		TaxCode:  tax,
	}
}

func (f legacyFormat) attach(params *entity.Params, receipt *entity.Receipt) {
	positions := make([]entity.Params, 0, len(receipt.Lines))
	for _, line := range receipt.Lines {
		positions = append(positions, entity.Params{
			{Key: "count", Value: line.Quantity},
			{Key: "name", Value: line.Name},
			{Key: "price", Value: line.Price},
			{Key: "tax_type", Value: line.TaxCode},
		})
	}
	params.Add("pg_receipt_positions", positions)
}

// regionalFormat adds the taxation system, the customer contacts and
// payment classifiers of every line.
type regionalFormat struct {
	conf entity.ReceiptConfig
}

func (f regionalFormat) line(item entity.LineItem, price decimal.Decimal) entity.ReceiptLine {
	return entity.ReceiptLine{
		Quantity:      item.Quantity,
		Name:          item.Name,
		Price:         price,
		TaxCode:       f.conf.NewTax,
		PaymentMethod: f.conf.PaymentMethod,
		PaymentObject: f.conf.PaymentObject,
	}
}

func (f regionalFormat) deliveryLine(name string, price decimal.Decimal) entity.ReceiptLine {
	return entity.ReceiptLine{
		Quantity:      1,
		Name:          name,
		Price:         price,
		TaxCode:       f.conf.DeliveryNewTax,
		PaymentMethod: f.conf.PaymentMethod,
		PaymentObject: f.conf.DeliveryPaymentObject,
	}
}

func (f regionalFormat) attach(params *entity.Params, receipt *entity.Receipt) {
	positions := make([]entity.Params, 0, len(receipt.Lines))
	for _, line := range receipt.Lines {
		positions = append(positions, entity.Params{
			{Key: "quantity", Value: line.Quantity},
			{Key: "name", Value: line.Name},
			{Key: "price", Value: line.Price},
			{Key: "vat_code", Value: line.TaxCode},
			{Key: "payment_method", Value: line.PaymentMethod},
			{Key: "payment_object", Value: line.PaymentObject},
		})
	}

	pgReceipt := entity.Params{
		{Key: "receipt_format", Value: string(receipt.Format)},
		{Key: "operation_type", Value: f.conf.TaxationSystem},
	}
	var customer entity.Params
	if email := params.Value("pg_user_contact_email"); email != "" {
		customer.Add("email", email)
	}
	if phone := params.Value("pg_user_phone"); phone != "" {
		customer.Add("phone", phone)
	}
	if len(customer) > 0 {
		pgReceipt.Add("customer", customer)
	}
	pgReceipt.Add("positions", positions)
	params.Add("pg_receipt", pgReceipt)
}

// alternateRegionalFormat takes catalog codes from product attributes.
type alternateRegionalFormat struct {
	conf entity.ReceiptConfig
}

func (f alternateRegionalFormat) line(item entity.LineItem, price decimal.Decimal) entity.ReceiptLine {
	return entity.ReceiptLine{
		Quantity:    item.Quantity,
		Name:        item.Name,
		Price:       price,
		TaxCode:     f.conf.NewTax,
		IkpuCode:    item.Attributes["ikpu_code"],
		PackageCode: item.Attributes["package_code"],
		UnitCode:    item.Attributes["unit_code"],
	}
}

func (f alternateRegionalFormat) deliveryLine(name string, price decimal.Decimal) entity.ReceiptLine {
	return entity.ReceiptLine{
		Quantity:    1,
		Name:        name,
		Price:       price,
		TaxCode:     f.conf.DeliveryNewTax,
		IkpuCode:    f.conf.DeliveryIkpuCode,
		PackageCode: f.conf.DeliveryPackageCode,
		UnitCode:    f.conf.DeliveryUnitCode,
	}
}

func (f alternateRegionalFormat) attach(params *entity.Params, receipt *entity.Receipt) {
	positions := make([]entity.Params, 0, len(receipt.Lines))
	for _, line := range receipt.Lines {
		positions = append(positions, entity.Params{
			{Key: "quantity", Value: line.Quantity},
			{Key: "name", Value: line.Name},
			{Key: "price", Value: line.Price},
			{Key: "vat_code", Value: line.TaxCode},
			{Key: "ikpu_code", Value: line.IkpuCode},
			{Key: "package_code", Value: line.PackageCode},
			{Key: "unit_code", Value: line.UnitCode},
		})
	}
	params.Add("pg_receipt", entity.Params{
		{Key: "receipt_format", Value: string(entity.ReceiptAlternateRegional)},
		{Key: "positions", Value: positions},
	})
}
