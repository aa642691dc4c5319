// Package linking resolves identity-to-account links across the manual, auto,
// direct, and socket strategies. Conflicting manual and auto attempts leave no
// trace; a direct payload is an authenticated observation, so its account
// upsert persists even when the link itself conflicts.
package linking

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/NovaLinkLabs/memberlink/backend/internal/account"
	"github.com/NovaLinkLabs/memberlink/backend/internal/fault"
	"github.com/NovaLinkLabs/memberlink/backend/internal/identity"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	opResolverNew = "linking.resolver.new"
	opResolve     = "linking.resolve"
	opComplete    = "linking.complete_session"

	defaultSessionTTL = 10 * time.Minute
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

// LinkStatus is the outcome tag of a resolve call.
type LinkStatus string

const (
	StatusLinked         LinkStatus = "linked"
	StatusConflict       LinkStatus = "conflict"
	StatusNotFound       LinkStatus = "notFound"
	StatusNoMatch        LinkStatus = "noMatch"
	StatusPendingSession LinkStatus = "pendingSession"
)

// ConflictSide distinguishes which side of the one-to-one invariant blocked
// the attempt.
type ConflictSide string

const (
	ConflictIdentityLinkedElsewhere ConflictSide = "identity_linked_elsewhere"
	ConflictAccountLinkedElsewhere  ConflictSide = "account_linked_elsewhere"
	ConflictSessionIdentityMismatch ConflictSide = "session_identity_mismatch"
)

// LinkRequest describes one linking attempt.
type LinkRequest struct {
	IdentityID  string
	Strategy    Method
	Username    string            // manual strategy
	DisplayName string            // auto strategy
	Payload     *account.Observed // direct strategy
}

// LinkResult is the typed outcome of a resolve or session-completion call.
type LinkResult struct {
	Status   LinkStatus
	Account  *account.Account
	Link     *Link
	Session  *SyncSession
	Conflict ConflictSide
}

// ResolverConfig describes the dependencies of the linking resolver.
type ResolverConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider account.IDProvider
	Logger     *zap.Logger
	SessionTTL time.Duration
}

// Resolver finds or rejects a candidate account for a messaging identity and
// establishes the link, enforcing one active link per identity and per account.
type Resolver struct {
	db         *gorm.DB
	clock      func() time.Time
	ids        account.IDProvider
	logger     *zap.Logger
	sessionTTL time.Duration
}

// NewResolver constructs the resolver.
func NewResolver(cfg ResolverConfig) (*Resolver, error) {
	if cfg.Database == nil {
		return nil, fault.New(fault.KindValidation, opResolverNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, fault.New(fault.KindValidation, opResolverNew, "missing_id_provider", errMissingIDProvider)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &Resolver{
		db:         cfg.Database,
		clock:      clock,
		ids:        cfg.IDProvider,
		logger:     logger,
		sessionTTL: ttl,
	}, nil
}

// Resolve runs one linking attempt. Conflict and not-found outcomes are
// reported through the result status, not through the error; errors signal
// invalid input or storage failures, with the transaction rolled back.
func (r *Resolver) Resolve(ctx context.Context, req LinkRequest) (LinkResult, error) {
	identityID := strings.TrimSpace(req.IdentityID)
	if identityID == "" {
		return LinkResult{}, fault.New(fault.KindValidation, opResolve, "missing_identity", nil)
	}
	if !req.Strategy.Valid() {
		return LinkResult{}, fault.New(fault.KindValidation, opResolve, "invalid_strategy", ErrInvalidMethod)
	}

	if req.Strategy == MethodSocket {
		return r.openSession(ctx, identityID)
	}

	var result LinkResult
	txErr := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		candidate, outcome, err := r.findCandidate(tx, req)
		if err != nil {
			return err
		}
		if candidate == nil {
			result = outcome
			return nil
		}

		committed, err := r.commitLink(tx, identityID, candidate, req.Strategy)
		if err != nil {
			return err
		}
		result = committed
		return nil
	})
	if txErr != nil {
		r.logError(opResolve, txErr, zap.String("identity_id", identityID), zap.String("strategy", string(req.Strategy)))
		return LinkResult{}, txErr
	}
	return result, nil
}

// findCandidate locates the account to link against, or the terminal outcome
// when no candidate qualifies.
func (r *Resolver) findCandidate(tx *gorm.DB, req LinkRequest) (*account.Account, LinkResult, error) {
	switch req.Strategy {
	case MethodManual:
		username, err := account.NormalizeUsername(req.Username)
		if err != nil {
			return nil, LinkResult{}, fault.New(fault.KindValidation, opResolve, "invalid_username", err)
		}
		acct, err := account.FindByUsername(tx, username)
		if err != nil {
			return nil, LinkResult{}, fault.New(fault.KindUpstream, opResolve, "account_lookup_failed", err)
		}
		if acct == nil {
			acct, err = account.FindByUsernameFuzzy(tx, username)
			if err != nil {
				return nil, LinkResult{}, fault.New(fault.KindUpstream, opResolve, "account_lookup_failed", err)
			}
		}
		if acct == nil {
			return nil, LinkResult{Status: StatusNotFound}, nil
		}
		return acct, LinkResult{}, nil

	case MethodDirect:
		if req.Payload == nil {
			return nil, LinkResult{}, fault.New(fault.KindValidation, opResolve, "missing_payload", nil)
		}
		acct, _, err := account.Upsert(tx, *req.Payload)
		if err != nil {
			return nil, LinkResult{}, classifyAccountError(opResolve, "account_upsert_failed", err)
		}
		return acct, LinkResult{}, nil

	case MethodAuto:
		displayName := strings.TrimSpace(req.DisplayName)
		if displayName == "" {
			return nil, LinkResult{}, fault.New(fault.KindValidation, opResolve, "missing_display_name", nil)
		}
		candidates, err := account.SearchByDisplayName(tx, displayName)
		if err != nil {
			return nil, LinkResult{}, fault.New(fault.KindUpstream, opResolve, "candidate_search_failed", err)
		}
		if len(candidates) == 0 {
			return nil, LinkResult{Status: StatusNoMatch}, nil
		}
		for index := range candidates {
			candidate := &candidates[index]
			held, err := activeLinkByAccount(tx, candidate.Username)
			if err != nil {
				return nil, LinkResult{}, fault.New(fault.KindUpstream, opResolve, "link_lookup_failed", err)
			}
			if held == nil || held.IdentityID == strings.TrimSpace(req.IdentityID) {
				return candidate, LinkResult{}, nil
			}
		}
		// Every candidate is held by another identity; report the best one
		// as the conflict without mutating anything.
		return nil, LinkResult{
			Status:   StatusConflict,
			Account:  &candidates[0],
			Conflict: ConflictAccountLinkedElsewhere,
		}, nil
	}

	return nil, LinkResult{}, fault.New(fault.KindValidation, opResolve, "invalid_strategy", ErrInvalidMethod)
}

// commitLink runs the conflict checks and, when clear, activates the link,
// appends the account_link transaction, and flags the identity. Runs inside
// the caller's transaction so the check-and-mutate sequence is atomic.
func (r *Resolver) commitLink(tx *gorm.DB, identityID string, acct *account.Account, method Method) (LinkResult, error) {
	now := r.clock().UTC()

	var owner identity.Identity
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("external_id = ?", identityID).
		Take(&owner).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return LinkResult{}, fault.New(fault.KindNotFound, opResolve, "identity_missing", err)
	}
	if err != nil {
		return LinkResult{}, fault.New(fault.KindUpstream, opResolve, "identity_lookup_failed", err)
	}

	heldByAccount, err := lockedActiveLinkByAccount(tx, acct.Username)
	if err != nil {
		return LinkResult{}, fault.New(fault.KindUpstream, opResolve, "link_lookup_failed", err)
	}
	if heldByAccount != nil && heldByAccount.IdentityID != identityID {
		return LinkResult{Status: StatusConflict, Account: acct, Conflict: ConflictAccountLinkedElsewhere}, nil
	}

	heldByIdentity, err := lockedActiveLinkByIdentity(tx, identityID)
	if err != nil {
		return LinkResult{}, fault.New(fault.KindUpstream, opResolve, "link_lookup_failed", err)
	}
	if heldByIdentity != nil && heldByIdentity.AccountUsername != acct.Username {
		return LinkResult{Status: StatusConflict, Account: acct, Conflict: ConflictIdentityLinkedElsewhere}, nil
	}

	if heldByIdentity != nil {
		// Same pair already active: refresh method and timestamp, nothing else.
		if err := tx.Model(&Link{}).
			Where("identity_id = ? AND account_username = ?", identityID, acct.Username).
			Updates(map[string]interface{}{"method": method, "linked_at": now}).Error; err != nil {
			return LinkResult{}, fault.New(fault.KindUpstream, opResolve, "link_refresh_failed", err)
		}
		heldByIdentity.Method = method
		heldByIdentity.LinkedAt = now
		return LinkResult{Status: StatusLinked, Account: acct, Link: heldByIdentity}, nil
	}

	var pair Link
	err = tx.Where("identity_id = ? AND account_username = ?", identityID, acct.Username).Take(&pair).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		pair = Link{
			IdentityID:      identityID,
			AccountUsername: acct.Username,
			Method:          method,
			Active:          true,
			LinkedAt:        now,
		}
		if err := tx.Create(&pair).Error; err != nil {
			return LinkResult{}, fault.New(fault.KindUpstream, opResolve, "link_save_failed", err)
		}
	} else if err != nil {
		return LinkResult{}, fault.New(fault.KindUpstream, opResolve, "link_lookup_failed", err)
	} else {
		if err := tx.Model(&Link{}).
			Where("identity_id = ? AND account_username = ?", identityID, acct.Username).
			Updates(map[string]interface{}{"active": true, "method": method, "linked_at": now}).Error; err != nil {
			return LinkResult{}, fault.New(fault.KindUpstream, opResolve, "link_save_failed", err)
		}
		pair.Active = true
		pair.Method = method
		pair.LinkedAt = now
	}

	if err := r.appendLinkTransaction(tx, identityID, acct, method); err != nil {
		return LinkResult{}, err
	}

	if err := tx.Model(&identity.Identity{}).
		Where("external_id = ?", identityID).
		Updates(map[string]interface{}{"linked": true, "account_username": acct.Username}).Error; err != nil {
		return LinkResult{}, fault.New(fault.KindUpstream, opResolve, "identity_flag_failed", err)
	}

	return LinkResult{Status: StatusLinked, Account: acct, Link: &pair}, nil
}

func (r *Resolver) appendLinkTransaction(tx *gorm.DB, identityID string, acct *account.Account, method Method) error {
	transactionID, err := r.ids.NewID()
	if err != nil {
		return fault.New(fault.KindUpstream, opResolve, "id_generation_failed", err)
	}
	detail, err := json.Marshal(map[string]string{
		"method":      string(method),
		"identity_id": identityID,
	})
	if err != nil {
		return fault.New(fault.KindUpstream, opResolve, "detail_encode_failed", err)
	}
	record := account.Transaction{
		TransactionID:   transactionID,
		AccountUsername: acct.Username,
		IdentityID:      identityID,
		Type:            account.TransactionAccountLink,
		Amount:          0,
		BalanceBefore:   acct.Balance,
		BalanceAfter:    acct.Balance,
		Source:          string(method),
		DetailJSON:      string(detail),
	}
	if err := tx.Create(&record).Error; err != nil {
		return fault.New(fault.KindUpstream, opResolve, "transaction_insert_failed", err)
	}
	if err := tx.Model(&account.Account{}).
		Where("username = ?", acct.Username).
		UpdateColumn("total_transactions", gorm.Expr("total_transactions + 1")).Error; err != nil {
		return fault.New(fault.KindUpstream, opResolve, "counter_update_failed", err)
	}
	acct.TotalTransactions++
	return nil
}

// openSession starts the deferred socket flow and returns immediately.
func (r *Resolver) openSession(ctx context.Context, identityID string) (LinkResult, error) {
	sessionID, err := r.ids.NewID()
	if err != nil {
		return LinkResult{}, fault.New(fault.KindUpstream, opResolve, "id_generation_failed", err)
	}
	session := SyncSession{
		SessionID:  sessionID,
		IdentityID: identityID,
		Status:     SessionPending,
		ExpiresAt:  r.clock().UTC().Add(r.sessionTTL),
	}
	if err := r.db.WithContext(ctx).Create(&session).Error; err != nil {
		r.logError(opResolve, err, zap.String("identity_id", identityID))
		return LinkResult{}, fault.New(fault.KindUpstream, opResolve, "session_create_failed", err)
	}
	return LinkResult{Status: StatusPendingSession, Session: &session}, nil
}

// CompleteSession finishes a deferred socket flow when the out-of-band payload
// arrives. Terminal and expired sessions are rejected; an identity mismatch
// transitions the session to failed and reports a conflict.
func (r *Resolver) CompleteSession(ctx context.Context, sessionID, identityID string, payload account.Observed) (LinkResult, error) {
	sessionID = strings.TrimSpace(sessionID)
	identityID = strings.TrimSpace(identityID)
	if sessionID == "" {
		return LinkResult{}, fault.New(fault.KindValidation, opComplete, "missing_session", nil)
	}
	if identityID == "" {
		return LinkResult{}, fault.New(fault.KindValidation, opComplete, "missing_identity", nil)
	}
	if err := payload.Validate(); err != nil {
		return LinkResult{}, fault.New(fault.KindValidation, opComplete, "invalid_payload", err)
	}

	var result LinkResult
	txErr := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := r.clock().UTC()

		var session SyncSession
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("session_id = ?", sessionID).
			Take(&session).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fault.New(fault.KindNotFound, opComplete, "session_missing", err)
		}
		if err != nil {
			return fault.New(fault.KindUpstream, opComplete, "session_lookup_failed", err)
		}
		if session.Status.Terminal() {
			return fault.New(fault.KindNotFound, opComplete, "session_closed", nil)
		}
		if now.After(session.ExpiresAt) {
			if err := expirePending(tx, now, sessionID); err != nil {
				return fault.New(fault.KindUpstream, opComplete, "session_expire_failed", err)
			}
			return fault.New(fault.KindNotFound, opComplete, "session_expired", nil)
		}
		if session.IdentityID != identityID {
			if err := r.closeSession(tx, sessionID, SessionFailed, "identity mismatch: "+identityID, now); err != nil {
				return err
			}
			result = LinkResult{Status: StatusConflict, Conflict: ConflictSessionIdentityMismatch, Session: &session}
			return nil
		}

		acct, _, err := account.Upsert(tx, payload)
		if err != nil {
			return classifyAccountError(opComplete, "account_upsert_failed", err)
		}

		committed, err := r.commitLink(tx, session.IdentityID, acct, MethodSocket)
		if err != nil {
			return err
		}

		if committed.Status == StatusLinked {
			if err := r.closeSession(tx, sessionID, SessionCompleted, "", now); err != nil {
				return err
			}
		} else {
			if err := r.closeSession(tx, sessionID, SessionFailed, string(committed.Conflict), now); err != nil {
				return err
			}
		}
		committed.Session = &session
		result = committed
		return nil
	})
	if txErr != nil {
		r.logError(opComplete, txErr, zap.String("session_id", sessionID), zap.String("identity_id", identityID))
		return LinkResult{}, txErr
	}
	return result, nil
}

// closeSession transitions a pending session to a terminal state. The status
// guard keeps a racing completion from being overwritten.
func (r *Resolver) closeSession(tx *gorm.DB, sessionID string, status SessionStatus, detail string, now time.Time) error {
	updates := map[string]interface{}{
		"status":       status,
		"completed_at": now,
	}
	if detail != "" {
		updates["detail"] = detail
	}
	err := tx.Model(&SyncSession{}).
		Where("session_id = ? AND status = ?", sessionID, SessionPending).
		Updates(updates).Error
	if err != nil {
		return fault.New(fault.KindUpstream, opComplete, "session_close_failed", err)
	}
	return nil
}

// ActiveLinkByIdentity returns the identity's active link, or nil when none
// exists. Shared with the reconciler and the read model.
func ActiveLinkByIdentity(tx *gorm.DB, identityID string) (*Link, error) {
	var link Link
	err := tx.Where("identity_id = ? AND active = ?", identityID, true).Take(&link).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &link, nil
}

func activeLinkByAccount(tx *gorm.DB, username string) (*Link, error) {
	var link Link
	err := tx.Where("account_username = ? AND active = ?", username, true).Take(&link).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &link, nil
}

func lockedActiveLinkByIdentity(tx *gorm.DB, identityID string) (*Link, error) {
	var link Link
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("identity_id = ? AND active = ?", identityID, true).
		Take(&link).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &link, nil
}

func lockedActiveLinkByAccount(tx *gorm.DB, username string) (*Link, error) {
	var link Link
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("account_username = ? AND active = ?", username, true).
		Take(&link).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &link, nil
}

func classifyAccountError(operation, reason string, err error) error {
	if errors.Is(err, account.ErrInvalidUsername) || errors.Is(err, account.ErrInvalidTier) {
		return fault.New(fault.KindValidation, operation, reason, err)
	}
	return fault.New(fault.KindUpstream, operation, reason, err)
}

func (r *Resolver) logError(operation string, err error, fields ...zap.Field) {
	attrs := []zap.Field{zap.String("operation", operation), zap.Error(err)}
	attrs = append(attrs, fields...)
	r.logger.Error("linking resolver error", attrs...)
}
