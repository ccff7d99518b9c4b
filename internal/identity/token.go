// Package identity derives the deterministic numeric identifiers PromptPay
// payloads are built from: the 20-digit merchant token and the 15-digit
// biller ID.
package identity

import "fmt"

// BuildMerchantToken composes the 20-digit merchant token used as ref1 in
// every PromptPay-routed transaction: group(3) + site(4) + store(6) +
// menu(7), zero-padded. menu=0 addresses the store as a whole rather than
// a specific menu/till. Returns an error if any component cannot fit its
// field width.
func BuildMerchantToken(groupID, siteID, storeID, menuID int64) (string, error) {
	if err := fitsWidth("group", groupID, 3); err != nil {
		return "", err
	}
	if err := fitsWidth("site", siteID, 4); err != nil {
		return "", err
	}
	if err := fitsWidth("store", storeID, 6); err != nil {
		return "", err
	}
	if err := fitsWidth("menu", menuID, 7); err != nil {
		return "", err
	}
	return fmt.Sprintf("%03d%04d%06d%07d", groupID, siteID, storeID, menuID), nil
}

func fitsWidth(name string, v int64, width int) error {
	if v < 0 {
		return fmt.Errorf("%s id must not be negative: %d", name, v)
	}
	max := int64(1)
	for i := 0; i < width; i++ {
		max *= 10
	}
	if v >= max {
		return fmt.Errorf("%s id %d exceeds %d-digit field width", name, v, width)
	}
	return nil
}
