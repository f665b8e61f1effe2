package redemption

import "time"

// VoucherRate is the fixed exchange rate: one credit buys five rupees of
// voucher value.
const VoucherRate int64 = 5

// Redemption is an immutable conversion of banked credits into a monetary
// voucher. Redeemed credits leave circulation permanently; there is no
// corresponding receiver and no reversal path.
type Redemption struct {
	ID              string
	MemberID        string
	CreditsRedeemed int64
	VoucherAmount   int64
	CreatedAt       time.Time
}
