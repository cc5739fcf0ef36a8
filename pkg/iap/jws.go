package iap

import (
	"context"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/google/uuid"
)

// JWSConfig locates the trust material for NewJWSVerifierFromConfig.
type JWSConfig struct {
	// RootCertsPath is a PEM bundle of trusted root certificates for x5c chains.
	RootCertsPath string `env:"IAP_JWS_ROOT_CERTS"`
	// KeySetPath is a JWKS file used when the token carries a kid instead of x5c.
	KeySetPath string `env:"IAP_JWS_KEYS"`
	// Environment, when set, must match the environment claim of every transaction.
	Environment string `env:"IAP_JWS_ENVIRONMENT"`
}

// JWSVerifierOption configures a JWSVerifier.
type JWSVerifierOption func(*JWSVerifier)

// WithRootCertificates sets the pool used to validate x5c certificate chains.
func WithRootCertificates(pool *x509.CertPool) JWSVerifierOption {
	return func(v *JWSVerifier) {
		v.roots = pool
	}
}

// WithKeySet sets the keys used for tokens identified by kid.
func WithKeySet(set *jose.JSONWebKeySet) JWSVerifierOption {
	return func(v *JWSVerifier) {
		v.keys = set
	}
}

// WithVerificationTime overrides the clock used for certificate validity checks.
func WithVerificationTime(now func() time.Time) JWSVerifierOption {
	return func(v *JWSVerifier) {
		if now != nil {
			v.now = now
		}
	}
}

// WithExpectedEnvironment rejects transactions signed for another environment.
func WithExpectedEnvironment(env string) JWSVerifierOption {
	return func(v *JWSVerifier) {
		v.environment = strings.ToLower(strings.TrimSpace(env))
	}
}

// JWSVerifier verifies ES256 compact JWS transactions in the App Store
// signed-transaction format.
type JWSVerifier struct {
	roots       *x509.CertPool
	keys        *jose.JSONWebKeySet
	now         func() time.Time
	environment string
}

// NewJWSVerifier creates a verifier. At least one of WithRootCertificates or
// WithKeySet should be given, otherwise nothing verifies.
func NewJWSVerifier(opts ...JWSVerifierOption) *JWSVerifier {
	v := &JWSVerifier{now: time.Now}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// NewJWSVerifierFromConfig loads the root bundle and key set named by cfg.
func NewJWSVerifierFromConfig(cfg JWSConfig, opts ...JWSVerifierOption) (*JWSVerifier, error) {
	base := []JWSVerifierOption{WithExpectedEnvironment(cfg.Environment)}

	if cfg.RootCertsPath != "" {
		pool, err := loadCertPool(cfg.RootCertsPath)
		if err != nil {
			return nil, err
		}
		base = append(base, WithRootCertificates(pool))
	}
	if cfg.KeySetPath != "" {
		data, err := os.ReadFile(cfg.KeySetPath)
		if err != nil {
			return nil, fmt.Errorf("read key set: %w", err)
		}
		var set jose.JSONWebKeySet
		if err := json.Unmarshal(data, &set); err != nil {
			return nil, fmt.Errorf("parse key set: %w", err)
		}
		base = append(base, WithKeySet(&set))
	}
	return NewJWSVerifier(append(base, opts...)...), nil
}

func loadCertPool(path string) (*x509.CertPool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read root certificates: %w", err)
	}
	pool := x509.NewCertPool()
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse root certificate: %w", err)
		}
		pool.AddCert(cert)
	}
	return pool, nil
}

// Verify checks the payload signature and decodes the transaction. When the
// signature cannot be confirmed the outcome still carries the decoded
// transaction, if any, for logging.
func (v *JWSVerifier) Verify(ctx context.Context, payload SignedPayload) VerificationOutcome {
	token := strings.TrimSpace(string(payload.Data))
	if token == "" {
		return VerificationOutcome{Err: ErrInvalidSignedPayload}
	}

	jws, err := jose.ParseSigned(token, []jose.SignatureAlgorithm{jose.ES256})
	if err != nil {
		return VerificationOutcome{Err: errors.Join(ErrInvalidSignedPayload, err)}
	}
	if len(jws.Signatures) == 0 {
		return VerificationOutcome{Err: ErrInvalidSignedPayload}
	}

	body, verr := v.verify(jws)
	if verr != nil {
		out := VerificationOutcome{Err: verr}
		if tx, err := decodeSignedTransaction(jws.UnsafePayloadWithoutVerification()); err == nil {
			out.Transaction = tx
		}
		return out
	}

	tx, err := decodeSignedTransaction(body)
	if err != nil {
		return VerificationOutcome{Err: errors.Join(ErrInvalidSignedPayload, err)}
	}
	if v.environment != "" && !strings.EqualFold(tx.Environment, v.environment) {
		return VerificationOutcome{
			Transaction: tx,
			Err:         fmt.Errorf("%w: environment %q", ErrInvalidSignedPayload, tx.Environment),
		}
	}
	return VerificationOutcome{Transaction: tx, Verified: true}
}

func (v *JWSVerifier) verify(jws *jose.JSONWebSignature) ([]byte, error) {
	header := jws.Signatures[0].Header

	body, err := v.verifyWithChain(jws, header)
	if err == nil {
		return body, nil
	}
	if !errors.Is(err, jose.ErrMissingX5cHeader) {
		return nil, errors.Join(ErrUntrustedCertificate, err)
	}

	if v.keys == nil {
		return nil, ErrUntrustedCertificate
	}
	keys := v.keys.Key(header.KeyID)
	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: unknown key %q", ErrUntrustedCertificate, header.KeyID)
	}
	body, err = jws.Verify(keys[0].Key)
	if err != nil {
		return nil, errors.Join(ErrInvalidSignedPayload, err)
	}
	return body, nil
}

func (v *JWSVerifier) verifyWithChain(jws *jose.JSONWebSignature, header jose.Header) ([]byte, error) {
	roots := v.roots
	if roots == nil {
		// An empty pool still reports a missing x5c header, so a kid lookup gets a chance.
		roots = x509.NewCertPool()
	}
	chains, err := header.Certificates(x509.VerifyOptions{
		Roots:       roots,
		CurrentTime: v.now(),
		KeyUsages:   []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	})
	if err != nil {
		return nil, err
	}
	if len(chains) == 0 || len(chains[0]) == 0 {
		return nil, errors.New("empty certificate chain")
	}
	leaf := chains[0][0]
	if leaf.PublicKey == nil {
		return nil, errors.New("certificate missing public key")
	}
	return jws.Verify(leaf.PublicKey)
}

// signedTransaction mirrors the JSON claims of an App Store signed transaction.
type signedTransaction struct {
	TransactionID         string `json:"transactionId"`
	OriginalTransactionID string `json:"originalTransactionId"`
	ProductID             string `json:"productId"`
	PurchaseDate          int64  `json:"purchaseDate"`
	ExpiresDate           int64  `json:"expiresDate"`
	RevocationDate        int64  `json:"revocationDate"`
	RevocationReason      *int   `json:"revocationReason"`
	IsUpgraded            bool   `json:"isUpgraded"`
	AppAccountToken       string `json:"appAccountToken"`
	Environment           string `json:"environment"`
}

func decodeSignedTransaction(body []byte) (*Transaction, error) {
	var st signedTransaction
	if err := json.Unmarshal(body, &st); err != nil {
		return nil, err
	}
	if st.TransactionID == "" || st.ProductID == "" {
		return nil, errors.New("transaction id and product id are required")
	}

	tx := &Transaction{
		ID:          st.TransactionID,
		OriginalID:  st.OriginalTransactionID,
		ProductID:   st.ProductID,
		PurchasedAt: millis(st.PurchaseDate),
		IsUpgraded:  st.IsUpgraded,
		Environment: st.Environment,
	}
	if st.ExpiresDate > 0 {
		t := millis(st.ExpiresDate)
		tx.ExpiresAt = &t
	}
	if st.RevocationDate > 0 {
		t := millis(st.RevocationDate)
		tx.RevokedAt = &t
		tx.RevocationReason = revocationReason(st.RevocationReason)
	}
	if st.AppAccountToken != "" {
		if token, err := uuid.Parse(st.AppAccountToken); err == nil {
			tx.AppAccountToken = token
		}
	}
	return tx, nil
}

func millis(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func revocationReason(code *int) string {
	if code == nil {
		return ""
	}
	switch *code {
	case 0:
		return "other"
	case 1:
		return "app_issue"
	default:
		return fmt.Sprintf("code_%d", *code)
	}
}
