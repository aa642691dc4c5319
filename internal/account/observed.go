package account

import (
	"fmt"
)

// Observed carries freshly observed account data. Nil fields were absent from
// the observation and leave the stored column untouched; the merge is a
// partial update, never a full replace.
type Observed struct {
	Username   string
	FirstName  *string
	LastName   *string
	Available  *float64
	Credit     *float64
	BetCredit  *float64
	Tier       *Tier
	Points     *int64
	Phone      *string
	BankName   *string
	BankNumber *string
	Active     *bool
}

// Validate normalizes the username and checks enumerated fields.
func (o *Observed) Validate() error {
	username, err := NormalizeUsername(o.Username)
	if err != nil {
		return err
	}
	o.Username = username
	if o.Tier != nil && !o.Tier.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidTier, *o.Tier)
	}
	return nil
}

// Apply merges present fields into the account and returns the column names
// that actually changed. The balance column is included so callers can detect
// the delta against the value they captured before the merge.
func (o Observed) Apply(acct *Account) []string {
	changed := make([]string, 0, 8)

	if o.FirstName != nil && *o.FirstName != acct.FirstName {
		acct.FirstName = *o.FirstName
		changed = append(changed, "first_name")
	}
	if o.LastName != nil && *o.LastName != acct.LastName {
		acct.LastName = *o.LastName
		changed = append(changed, "last_name")
	}
	if o.Available != nil && *o.Available != acct.Balance {
		acct.Balance = *o.Available
		changed = append(changed, "balance")
	}
	if o.Credit != nil && *o.Credit != acct.Credit {
		acct.Credit = *o.Credit
		changed = append(changed, "credit")
	}
	if o.BetCredit != nil && *o.BetCredit != acct.BetCredit {
		acct.BetCredit = *o.BetCredit
		changed = append(changed, "bet_credit")
	}
	if o.Tier != nil && *o.Tier != acct.Tier {
		acct.Tier = *o.Tier
		changed = append(changed, "tier")
	}
	if o.Points != nil && *o.Points != acct.Points {
		acct.Points = *o.Points
		changed = append(changed, "points")
	}
	if o.Phone != nil && *o.Phone != acct.Phone {
		acct.Phone = *o.Phone
		changed = append(changed, "phone")
	}
	if o.BankName != nil && *o.BankName != acct.BankName {
		acct.BankName = *o.BankName
		changed = append(changed, "bank_name")
	}
	if o.BankNumber != nil && *o.BankNumber != acct.BankNumber {
		acct.BankNumber = *o.BankNumber
		changed = append(changed, "bank_number")
	}
	if o.Active != nil && *o.Active != acct.Active {
		acct.Active = *o.Active
		changed = append(changed, "active")
	}

	return changed
}
