/**
 * @description
 * This file defines the core domain models for the settlement-service.
 * These structs represent the entities the settlement engine mutates state
 * around: users, balance-bearing accounts, and the transaction record that
 * tracks one transfer from initiation through completion.
 *
 * @notes
 * - Amounts are stored as `int64` in the smallest currency unit, which avoids
 *   floating-point inaccuracies with financial data.
 * - Relationship fields on a transaction may arrive either as a bare id or as
 *   a fully populated record depending on how deeply the upstream CMS layer
 *   expanded the document. `AccountRef`/`UserRef` model both shapes
 *   explicitly so callers never have to normalize first.
 */

package domain

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Transaction statuses. The settlement engine itself only ever writes
// StatusRejected; the surrounding workflow owns the transition to
// StatusAccepted after the completion leg settles.
const (
	StatusRequested = "requested"
	StatusPending   = "pending"
	StatusRejected  = "rejected"
	StatusAccepted  = "accepted"
)

// Account represents a balance-bearing wallet owned by exactly one user.
// The provider tag identifies the external payment rail the account was
// provisioned on; the engine carries it through without consuming it.
type Account struct {
	ID        uuid.UUID `json:"id"`
	OwnerID   uuid.UUID `json:"owner"`
	Provider  string    `json:"provider"`
	Balance   int64     `json:"balance"` // in minor units
	CreatedAt time.Time `json:"created_at"`
}

// User represents a participant. PreferredAccountID, when set, names the
// account settlement should target for transfers received by this user.
type User struct {
	ID                 uuid.UUID  `json:"id"`
	Email              string     `json:"email"`
	PreferredAccountID *uuid.UUID `json:"preferred_account,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

// Transaction represents one transfer request and its outcome. `To` is not
// set by the caller; the initiation step populates it as a side effect.
type Transaction struct {
	ID        uuid.UUID   `json:"id"`
	Sender    UserRef     `json:"sender"`
	From      AccountRef  `json:"from"`
	Receiver  UserRef     `json:"receiver"`
	To        *AccountRef `json:"to,omitempty"`
	Amount    int64       `json:"amount"` // in minor units
	Status    string      `json:"status"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// WaitlistEntry records one email address on the launch waitlist.
type WaitlistEntry struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// AccountRef refers to an account either by id alone or with the record
// already loaded. Resolution happens lazily through the store.
type AccountRef struct {
	ID      uuid.UUID
	Account *Account
}

// Resolved reports whether the referenced record is already materialized.
func (r AccountRef) Resolved() bool {
	return r.Account != nil
}

// NewAccountRef builds an unresolved reference from a bare id.
func NewAccountRef(id uuid.UUID) AccountRef {
	return AccountRef{ID: id}
}

// ResolvedAccountRef builds a reference that carries the full record.
func ResolvedAccountRef(account *Account) AccountRef {
	return AccountRef{ID: account.ID, Account: account}
}

// UnmarshalJSON accepts either a bare id string or an embedded account
// object, matching the variable population depth of upstream queries.
func (r *AccountRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var account Account
		if err := json.Unmarshal(data, &account); err != nil {
			return err
		}
		r.ID = account.ID
		r.Account = &account
		return nil
	}

	var id uuid.UUID
	if err := json.Unmarshal(data, &id); err != nil {
		return err
	}
	r.ID = id
	r.Account = nil
	return nil
}

// MarshalJSON emits the full record when resolved, otherwise the bare id.
func (r AccountRef) MarshalJSON() ([]byte, error) {
	if r.Account != nil {
		return json.Marshal(r.Account)
	}
	return json.Marshal(r.ID)
}

// UserRef refers to a user either by id alone or with the record loaded.
type UserRef struct {
	ID   uuid.UUID
	User *User
}

// Resolved reports whether the referenced record is already materialized.
func (r UserRef) Resolved() bool {
	return r.User != nil
}

// NewUserRef builds an unresolved reference from a bare id.
func NewUserRef(id uuid.UUID) UserRef {
	return UserRef{ID: id}
}

// ResolvedUserRef builds a reference that carries the full record.
func ResolvedUserRef(user *User) UserRef {
	return UserRef{ID: user.ID, User: user}
}

// UnmarshalJSON accepts either a bare id string or an embedded user object.
func (r *UserRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var user User
		if err := json.Unmarshal(data, &user); err != nil {
			return err
		}
		r.ID = user.ID
		r.User = &user
		return nil
	}

	var id uuid.UUID
	if err := json.Unmarshal(data, &id); err != nil {
		return err
	}
	r.ID = id
	r.User = nil
	return nil
}

// MarshalJSON emits the full record when resolved, otherwise the bare id.
func (r UserRef) MarshalJSON() ([]byte, error) {
	if r.User != nil {
		return json.Marshal(r.User)
	}
	return json.Marshal(r.ID)
}
