package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Metadata keys written onto the checkout session. The provider stores flat
// string maps only, so the purchased items travel as two positionally aligned
// comma-joined lists.
const (
	MetaBuyerID          = "buyerId"
	MetaBuyerEmail       = "buyerEmail"
	MetaCustomerRecordID = "customerRecordId"
	MetaProductIDs       = "productIds"
	MetaQuantities       = "quantities"

	// MaxMetadataValueLen is the provider's per-value limit.
	MaxMetadataValueLen = 500
)

var ErrMalformedMetadata = errors.New("malformed checkout metadata")

// MetadataError names the field that could not be encoded or decoded.
type MetadataError struct {
	Field  string
	Reason string
}

func (e *MetadataError) Error() string {
	return fmt.Sprintf("metadata %s: %s", e.Field, e.Reason)
}

func (e *MetadataError) Is(target error) bool {
	return target == ErrMalformedMetadata
}

type MetadataItem struct {
	ProductID string
	Quantity  int
}

// CheckoutMetadata is what session creation hands to the confirmation step.
type CheckoutMetadata struct {
	BuyerID          string
	BuyerEmail       string
	CustomerRecordID string
	Items            []MetadataItem
}

// Encode flattens the metadata into the provider's string map.
func (m CheckoutMetadata) Encode() (map[string]string, error) {
	if len(m.Items) == 0 {
		return nil, &MetadataError{Field: MetaProductIDs, Reason: "no items"}
	}

	ids := make([]string, len(m.Items))
	quantities := make([]string, len(m.Items))
	for i, item := range m.Items {
		if item.ProductID == "" || strings.Contains(item.ProductID, ",") {
			return nil, &MetadataError{Field: MetaProductIDs, Reason: fmt.Sprintf("unencodable product id %q", item.ProductID)}
		}
		if item.Quantity <= 0 {
			return nil, &MetadataError{Field: MetaQuantities, Reason: fmt.Sprintf("non-positive quantity %d", item.Quantity)}
		}
		ids[i] = item.ProductID
		quantities[i] = strconv.Itoa(item.Quantity)
	}

	out := map[string]string{
		MetaBuyerID:          m.BuyerID,
		MetaBuyerEmail:       m.BuyerEmail,
		MetaCustomerRecordID: m.CustomerRecordID,
		MetaProductIDs:       strings.Join(ids, ","),
		MetaQuantities:       strings.Join(quantities, ","),
	}
	for key, value := range out {
		if value == "" {
			return nil, &MetadataError{Field: key, Reason: "empty"}
		}
		if len(value) > MaxMetadataValueLen {
			return nil, &MetadataError{Field: key, Reason: fmt.Sprintf("value exceeds %d characters", MaxMetadataValueLen)}
		}
	}
	return out, nil
}

// DecodeCheckoutMetadata rebuilds the metadata written by Encode. Any missing
// field or misaligned list is a MetadataError.
func DecodeCheckoutMetadata(raw map[string]string) (*CheckoutMetadata, error) {
	for _, key := range []string{MetaBuyerID, MetaBuyerEmail, MetaCustomerRecordID, MetaProductIDs, MetaQuantities} {
		if strings.TrimSpace(raw[key]) == "" {
			return nil, &MetadataError{Field: key, Reason: "missing"}
		}
	}

	ids := strings.Split(raw[MetaProductIDs], ",")
	quantities := strings.Split(raw[MetaQuantities], ",")
	if len(ids) != len(quantities) {
		return nil, &MetadataError{
			Field:  MetaQuantities,
			Reason: fmt.Sprintf("%d product ids but %d quantities", len(ids), len(quantities)),
		}
	}

	items := make([]MetadataItem, len(ids))
	for i := range ids {
		id := strings.TrimSpace(ids[i])
		if id == "" {
			return nil, &MetadataError{Field: MetaProductIDs, Reason: fmt.Sprintf("empty id at position %d", i)}
		}
		qty, err := strconv.Atoi(strings.TrimSpace(quantities[i]))
		if err != nil || qty <= 0 {
			return nil, &MetadataError{Field: MetaQuantities, Reason: fmt.Sprintf("invalid quantity %q at position %d", quantities[i], i)}
		}
		items[i] = MetadataItem{ProductID: id, Quantity: qty}
	}

	return &CheckoutMetadata{
		BuyerID:          raw[MetaBuyerID],
		BuyerEmail:       raw[MetaBuyerEmail],
		CustomerRecordID: raw[MetaCustomerRecordID],
		Items:            items,
	}, nil
}
