package account

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

// FindByUsername loads an account by its exact normalized username. A nil
// account with a nil error means no row exists.
func FindByUsername(tx *gorm.DB, username string) (*Account, error) {
	var acct Account
	err := tx.Where("username = ?", username).Take(&acct).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &acct, nil
}

// FindByUsernameFuzzy falls back to a containment match when the exact lookup
// missed, preferring the most recently active candidate.
func FindByUsernameFuzzy(tx *gorm.DB, username string) (*Account, error) {
	var acct Account
	err := tx.
		Where("username LIKE ?", "%"+username+"%").
		Order("updated_at DESC").
		Take(&acct).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &acct, nil
}

// SearchByDisplayName returns linking candidates for a messaging-platform
// display name. Exact name matches rank above partial containment matches,
// which rank above token-wise matches; within each band the most recently
// active account comes first.
func SearchByDisplayName(tx *gorm.DB, displayName string) ([]Account, error) {
	needle := strings.ToLower(strings.TrimSpace(displayName))
	if needle == "" {
		return nil, nil
	}

	const fullName = "lower(trim(first_name || ' ' || last_name))"

	ranked := make([]Account, 0, 8)
	seen := make(map[string]bool)

	appendMatches := func(candidates []Account) {
		for _, candidate := range candidates {
			if seen[candidate.Username] {
				continue
			}
			seen[candidate.Username] = true
			ranked = append(ranked, candidate)
		}
	}

	var exact []Account
	if err := tx.
		Where(fullName+" = ?", needle).
		Order("updated_at DESC").
		Find(&exact).Error; err != nil {
		return nil, err
	}
	appendMatches(exact)

	var partial []Account
	if err := tx.
		Where(fullName+" LIKE ?", "%"+needle+"%").
		Order("updated_at DESC").
		Find(&partial).Error; err != nil {
		return nil, err
	}
	appendMatches(partial)

	if len(ranked) == 0 {
		tokens := strings.Fields(needle)
		for _, token := range tokens {
			var byToken []Account
			if err := tx.
				Where(fullName+" LIKE ?", "%"+token+"%").
				Order("updated_at DESC").
				Find(&byToken).Error; err != nil {
				return nil, err
			}
			appendMatches(byToken)
		}
	}

	return ranked, nil
}

// Upsert creates or refreshes the account row for the observed payload and
// returns the merged row plus the changed column names. New rows start at the
// Bronze tier and active.
func Upsert(tx *gorm.DB, observed Observed) (*Account, []string, error) {
	if err := observed.Validate(); err != nil {
		return nil, nil, err
	}

	existing, err := FindByUsername(tx, observed.Username)
	if err != nil {
		return nil, nil, err
	}

	if existing == nil {
		created := Account{
			Username: observed.Username,
			Tier:     TierBronze,
			Active:   true,
		}
		changed := observed.Apply(&created)
		if err := tx.Create(&created).Error; err != nil {
			return nil, nil, err
		}
		return &created, changed, nil
	}

	changed := observed.Apply(existing)
	if len(changed) == 0 {
		return existing, changed, nil
	}
	if err := tx.Save(existing).Error; err != nil {
		return nil, nil, err
	}
	return existing, changed, nil
}
