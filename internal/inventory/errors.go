package inventory

import (
	"errors"
	"fmt"
)

var (
	ErrSKUNotFound         = errors.New("sku not found")
	ErrReservationExpired  = errors.New("reservation expired")
	ErrReservationNotFound = errors.New("reservation not found")
	ErrInvalidQuantity     = errors.New("quantity must be positive")
	ErrInvalidMode         = errors.New("adjust mode must be set, add or subtract")
)

type OutOfStockError struct {
	SKUID     string
	Requested int
	Available int
}

func (e *OutOfStockError) Error() string {
	return fmt.Sprintf("out of stock: sku=%s requested=%d available=%d", e.SKUID, e.Requested, e.Available)
}

type NegativeStockError struct {
	SKUID   string
	Current int
	Delta   int
}

func (e *NegativeStockError) Error() string {
	return fmt.Sprintf("negative stock: sku=%s current=%d delta=%d", e.SKUID, e.Current, e.Delta)
}
