// Copyright 2026 The Convoy Authors
// SPDX-License-Identifier: Apache-2.0

package trust

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/convoy-ci/convoy/lib/clock"
)

// ErrTrustDenied means a cross-account role assumption was refused.
// Fatal for the requesting action; a trust misconfiguration is never
// silently retried.
var ErrTrustDenied = errors.New("cross-account trust denied")

// sessionTTL bounds the lifetime of minted session credentials.
const sessionTTL = 15 * time.Minute

// Operation names something a foreign-account role is trusted to do.
// Operation sets are declared explicitly in configuration; nothing is
// inferred between roles.
type Operation string

const (
	// OpExecuteChange is applying an infrastructure change in the
	// foreign account.
	OpExecuteChange Operation = "change:execute"

	// OpOrchestrate is the pipeline's cross-account access for
	// coordinating a deployment.
	OpOrchestrate Operation = "pipeline:orchestrate"
)

// ParseOperation converts a config-file operation name to an
// Operation.
func ParseOperation(name string) (Operation, error) {
	switch Operation(name) {
	case OpExecuteChange:
		return OpExecuteChange, nil
	case OpOrchestrate:
		return OpOrchestrate, nil
	default:
		return "", fmt.Errorf("unknown trust operation %q", name)
	}
}

// Directory is the statically configured map of foreign accounts and
// the roles they expose. Built once at configuration time.
type Directory struct {
	accounts map[string]map[string][]Operation
}

// NewDirectory creates an empty directory.
func NewDirectory() *Directory {
	return &Directory{accounts: make(map[string]map[string][]Operation)}
}

// AddRole declares a role in a foreign account together with the
// operations it is trusted for.
func (d *Directory) AddRole(accountID, roleName string, operations ...Operation) error {
	if accountID == "" || roleName == "" {
		return fmt.Errorf("account id and role name are required")
	}
	if len(operations) == 0 {
		return fmt.Errorf("role %s in account %s: at least one trusted operation is required", roleName, accountID)
	}
	roles := d.accounts[accountID]
	if roles == nil {
		roles = make(map[string][]Operation)
		d.accounts[accountID] = roles
	}
	if _, exists := roles[roleName]; exists {
		return fmt.Errorf("role %s in account %s is already declared", roleName, accountID)
	}
	roles[roleName] = append([]Operation(nil), operations...)
	return nil
}

// RoleHandle is a resolved, immutable reference to a foreign-account
// role and its trusted operation set. Handles are only constructed by
// Broker.ResolveRole.
type RoleHandle struct {
	arn       string
	accountID string
	roleName  string
	trusted   map[Operation]bool
}

// ARN returns the constructed role identity string.
func (h RoleHandle) ARN() string { return h.arn }

// AccountID returns the foreign account identifier.
func (h RoleHandle) AccountID() string { return h.accountID }

// RoleName returns the role name within the account.
func (h RoleHandle) RoleName() string { return h.roleName }

// Trusts reports whether the handle's configured operation set
// includes op.
func (h RoleHandle) Trusts(op Operation) bool { return h.trusted[op] }

// SessionCredentials is a short-lived, single-invocation credential
// for acting as a foreign-account role.
type SessionCredentials struct {
	// RoleARN identifies the assumed role.
	RoleARN string

	// Token is the opaque session token. Never logged.
	Token string

	// Operations is the scope granted to this session — always the
	// set that was requested, never widened.
	Operations []Operation

	// Expires is when the session stops being honored.
	Expires time.Time
}

// Allows reports whether the session's scope includes op.
func (c SessionCredentials) Allows(op Operation) bool {
	for _, granted := range c.Operations {
		if granted == op {
			return true
		}
	}
	return false
}

// Expired reports whether the session has passed its expiry.
func (c SessionCredentials) Expired(now time.Time) bool {
	return now.After(c.Expires)
}

// Broker resolves role handles against the directory and mints scoped
// sessions.
type Broker struct {
	directory *Directory
	clock     clock.Clock
	logger    *slog.Logger
}

// NewBroker creates a broker over a configured directory.
func NewBroker(directory *Directory, clk clock.Clock, logger *slog.Logger) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broker{directory: directory, clock: clk, logger: logger}
}

// ResolveRole constructs a handle for a declared role. Resolution is
// pure string construction plus a reachability check against the
// directory; an undeclared account or role is an error.
func (b *Broker) ResolveRole(accountID, roleName string) (RoleHandle, error) {
	roles, ok := b.directory.accounts[accountID]
	if !ok {
		return RoleHandle{}, fmt.Errorf("account %s is not declared in the trust directory", accountID)
	}
	operations, ok := roles[roleName]
	if !ok {
		return RoleHandle{}, fmt.Errorf("role %s is not declared for account %s", roleName, accountID)
	}

	trusted := make(map[Operation]bool, len(operations))
	for _, operation := range operations {
		trusted[operation] = true
	}
	return RoleHandle{
		arn:       fmt.Sprintf("arn:convoy:iam::%s:role/%s", accountID, roleName),
		accountID: accountID,
		roleName:  roleName,
		trusted:   trusted,
	}, nil
}

// Assume mints session credentials for the requested operations. The
// subset check happens before anything else: a request outside the
// handle's trusted set is ErrTrustDenied and the foreign account is
// never contacted.
func (b *Broker) Assume(ctx context.Context, handle RoleHandle, requested []Operation) (SessionCredentials, error) {
	if len(requested) == 0 {
		return SessionCredentials{}, fmt.Errorf("assuming %s: at least one operation must be requested", handle.arn)
	}
	for _, operation := range requested {
		if !handle.Trusts(operation) {
			return SessionCredentials{}, fmt.Errorf("assuming %s: operation %q not in trusted set: %w",
				handle.arn, operation, ErrTrustDenied)
		}
	}
	if err := ctx.Err(); err != nil {
		return SessionCredentials{}, fmt.Errorf("assuming %s: %w", handle.arn, err)
	}

	tokenBytes := make([]byte, 24)
	if _, err := rand.Read(tokenBytes); err != nil {
		return SessionCredentials{}, fmt.Errorf("minting session token: %w", err)
	}

	credentials := SessionCredentials{
		RoleARN:    handle.arn,
		Token:      hex.EncodeToString(tokenBytes),
		Operations: append([]Operation(nil), requested...),
		Expires:    b.clock.Now().Add(sessionTTL),
	}
	b.logger.Info("assumed cross-account role",
		"role", handle.arn,
		"operations", fmt.Sprint(requested),
		"expires", credentials.Expires)
	return credentials, nil
}
