package entity

import (
	"fmt"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func toDecimal128(d decimal.Decimal) (primitive.Decimal128, error) {
	dec, err := primitive.ParseDecimal128(d.String())
	if err != nil {
		return primitive.Decimal128{}, fmt.Errorf("failed to convert decimal %s: %w", d.String(), err)
	}
	return dec, nil
}

func fromDecimal128(dec primitive.Decimal128) decimal.Decimal {
	d, err := decimal.NewFromString(dec.String())
	if err != nil {
		return decimal.Zero
	}
	return d
}

func toDecimal128Ptr(d *decimal.Decimal) (*primitive.Decimal128, error) {
	if d == nil {
		return nil, nil
	}
	dec, err := toDecimal128(*d)
	if err != nil {
		return nil, err
	}
	return &dec, nil
}

func fromDecimal128Ptr(dec *primitive.Decimal128) *decimal.Decimal {
	if dec == nil {
		return nil
	}
	d := fromDecimal128(*dec)
	return &d
}
