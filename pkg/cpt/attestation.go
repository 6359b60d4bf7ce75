package cpt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ApprovalClaims is the payload of a signed approval attestation. It binds
// the approver identity to the exact record id, version and regulatory
// references that were approved, so a later audit can verify the approval
// was not fabricated after the fact.
type ApprovalClaims struct {
	CPTID          string   `json:"cpt_id"`
	Version        int      `json:"cpt_version"`
	ChildID        string   `json:"child_id"`
	Approver       string   `json:"approver"`
	RegulatoryRefs []string `json:"regulatory_refs,omitempty"`
	jwt.RegisteredClaims
}

// Attestor mints and verifies HMAC-signed approval attestations.
type Attestor struct {
	secret []byte
	issuer string
}

// NewAttestor creates an attestor with the given signing secret and issuer
// name. The secret must be non-empty.
func NewAttestor(secret []byte, issuer string) (*Attestor, error) {
	if len(secret) == 0 {
		return nil, errors.New("attestor secret must not be empty")
	}
	if issuer == "" {
		issuer = "korinsic-cpt-library"
	}
	return &Attestor{secret: secret, issuer: issuer}, nil
}

// Mint signs an approval attestation for the record.
func (a *Attestor) Mint(rec *Record, approver string) (string, error) {
	now := time.Now().UTC()
	claims := &ApprovalClaims{
		CPTID:          rec.ID,
		Version:        rec.Meta.Version,
		ChildID:        rec.ChildID,
		Approver:       approver,
		RegulatoryRefs: append([]string(nil), rec.Meta.RegulatoryRefs...),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   a.issuer,
			Subject:  rec.ID,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("sign attestation for cpt %q: %w", rec.ID, err)
	}
	return signed, nil
}

// Verify checks the signature and issuer of an attestation token and
// returns its claims.
func (a *Attestor) Verify(token string) (*ApprovalClaims, error) {
	claims := &ApprovalClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(t *jwt.Token) (any, error) { return a.secret, nil },
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(a.issuer),
	)
	if err != nil {
		return nil, fmt.Errorf("verify attestation: %w", err)
	}
	if !parsed.Valid {
		return nil, errors.New("verify attestation: token invalid")
	}
	return claims, nil
}
