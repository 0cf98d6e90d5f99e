package circulation

import (
	"errors"
	"strings"
	"time"
)

// ItemType is the closed set of item categories the library lends out.
// Each category carries its loan period and its fine per overdue day as data, see itemTypePolicies.
type ItemType int

const (
	// ItemTypeUnknown is the zero value and never valid.
	ItemTypeUnknown ItemType = iota

	// ItemTypeCD is fast-turnover media: short loan period, high daily fine.
	ItemTypeCD

	// ItemTypeBook is a standard loan: long loan period, low daily fine.
	ItemTypeBook
)

type itemTypePolicy struct {
	tag        string
	loanPeriod int // days
	finePerDay int64
}

var itemTypePolicies = map[ItemType]itemTypePolicy{
	ItemTypeCD:   {tag: "CD", loanPeriod: 7, finePerDay: 20},
	ItemTypeBook: {tag: "BOOK", loanPeriod: 28, finePerDay: 10},
}

// ItemTypes returns all valid item types in a stable order.
func ItemTypes() []ItemType {
	return []ItemType{ItemTypeCD, ItemTypeBook}
}

// ParseItemType resolves an item type tag case-insensitively.
// Surrounding whitespace is ignored. An unrecognized tag fails with ErrUnknownItemType.
func ParseItemType(tag string) (ItemType, error) {
	normalized := strings.ToUpper(strings.TrimSpace(tag))

	for itemType, policy := range itemTypePolicies {
		if policy.tag == normalized {
			return itemType, nil
		}
	}

	return ItemTypeUnknown, errors.Join(ErrUnknownItemType, errors.New("tag: "+tag))
}

// String returns the canonical tag, which is also the representation used in storage.
func (t ItemType) String() string {
	if policy, ok := itemTypePolicies[t]; ok {
		return policy.tag
	}

	return "UNKNOWN"
}

// IsValid reports whether t is one of the known categories.
func (t ItemType) IsValid() bool {
	_, ok := itemTypePolicies[t]
	return ok
}

// LoanPeriod is the number of days an item of this type may be kept.
func (t ItemType) LoanPeriod() int {
	return itemTypePolicies[t].loanPeriod
}

// FinePerDay is the fine charged for each overdue day.
func (t ItemType) FinePerDay() int64 {
	return itemTypePolicies[t].finePerDay
}

// DueDate derives the due date of a loan that starts on borrowDate.
func (t ItemType) DueDate(borrowDate time.Time) time.Time {
	return ToDate(borrowDate).AddDate(0, 0, t.LoanPeriod())
}

// Fine computes overdueDays × FinePerDay. Callers clamp overdue days with OverdueDays first;
// a negative input is treated as not overdue.
func (t ItemType) Fine(overdueDays int) int64 {
	if overdueDays <= 0 {
		return 0
	}

	return int64(overdueDays) * t.FinePerDay()
}

// CalculateFine selects the fine policy by item type tag (case-insensitive) and applies it.
func CalculateFine(tag string, overdueDays int) (int64, error) {
	itemType, err := ParseItemType(tag)
	if err != nil {
		return 0, err
	}

	return itemType.Fine(overdueDays), nil
}
