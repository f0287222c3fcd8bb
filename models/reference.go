package models

import (
	"fmt"
	"strings"
)

// ReferenceKind names the entity a notification, report or invoice points at.
type ReferenceKind string

const (
	RefBooking  ReferenceKind = "BOOKING"
	RefBid      ReferenceKind = "BID"
	RefPayment  ReferenceKind = "PAYMENT"
	RefSettings ReferenceKind = "SETTINGS"
)

// referenceCollections is the lookup table from kind to its backing collection.
var referenceCollections = map[ReferenceKind]string{
	RefBooking:  "bookings",
	RefBid:      "bids",
	RefPayment:  "payments",
	RefSettings: "settings",
}

// ParseReferenceKind accepts the canonical name in any case.
func ParseReferenceKind(raw string) (ReferenceKind, error) {
	kind := ReferenceKind(strings.ToUpper(strings.TrimSpace(raw)))
	if _, ok := referenceCollections[kind]; !ok {
		return "", fmt.Errorf("unknown reference kind %q", raw)
	}
	return kind, nil
}

// Collection returns the collection holding entities of this kind.
func (k ReferenceKind) Collection() string {
	return referenceCollections[k]
}

// Reference is a typed pointer to another entity.
type Reference struct {
	Kind ReferenceKind `bson:"kind" json:"kind"`
	ID   string        `bson:"id" json:"id"`
}
