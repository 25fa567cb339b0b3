package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// MetadataSchemaVersion is bumped whenever the metadata field set changes.
// Sessions written by older binaries stay parseable; unknown versions fail
// loudly instead of being reconstructed wrong.
const MetadataSchemaVersion = 1

// ProductRef is one frozen line of the cart, embedded in the gateway
// session at creation time. Finalization rebuilds order line items from
// these references only, using the price recorded here.
type ProductRef struct {
	ProductID int64   `json:"product_id"`
	Quantity  int32   `json:"quantity"`
	Price     float64 `json:"price"`
}

// SessionMetadata is the externally-held record attached to a payment
// session. It is immutable once the session is created and is the only
// input finalization trusts for order reconstruction.
type SessionMetadata struct {
	SchemaVersion int          `json:"schema_version"`
	UserID        int64        `json:"user_id"`
	CouponCode    string       `json:"coupon_code"`
	Products      []ProductRef `json:"products"`
}

// Encode flattens the metadata into the string bag the gateway accepts.
func (m *SessionMetadata) Encode() (map[string]string, error) {
	products, err := json.Marshal(m.Products)
	if err != nil {
		return nil, fmt.Errorf("marshal product refs: %w", err)
	}
	return map[string]string{
		"schemaVersion": strconv.Itoa(m.SchemaVersion),
		"userId":        strconv.FormatInt(m.UserID, 10),
		"couponCode":    m.CouponCode,
		"products":      string(products),
	}, nil
}

// ParseSessionMetadata rebuilds metadata from a gateway session's string bag.
func ParseSessionMetadata(values map[string]string) (*SessionMetadata, error) {
	version, err := strconv.Atoi(values["schemaVersion"])
	if err != nil {
		return nil, fmt.Errorf("invalid metadata schema version %q", values["schemaVersion"])
	}
	if version != MetadataSchemaVersion {
		return nil, fmt.Errorf("unsupported metadata schema version %d", version)
	}

	userID, err := strconv.ParseInt(values["userId"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid metadata user id %q", values["userId"])
	}

	var products []ProductRef
	if err := json.Unmarshal([]byte(values["products"]), &products); err != nil {
		return nil, fmt.Errorf("unmarshal product refs: %w", err)
	}
	if len(products) == 0 {
		return nil, fmt.Errorf("metadata carries no product refs")
	}

	return &SessionMetadata{
		SchemaVersion: version,
		UserID:        userID,
		CouponCode:    values["couponCode"],
		Products:      products,
	}, nil
}
