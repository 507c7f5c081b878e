package identity

import (
	"context"
	stderrors "errors"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"

	"github.com/felixgeelhaar/campusconnect/internal/errors"
	"github.com/felixgeelhaar/campusconnect/internal/log"
)

// OIDCConfig configures an OIDCProvider.
type OIDCConfig struct {
	// Issuer is the identity provider's issuer URL.
	Issuer string
	// ClientID is the expected ID token audience.
	ClientID string
	// JWKSURL skips discovery and fetches signing keys from this URL.
	JWKSURL string
	// KeySet verifies signatures directly. It takes precedence over JWKSURL and discovery.
	KeySet oidc.KeySet
	// TokenPath keeps the ID token between runs.
	TokenPath string
	Logger    *log.Logger

	// now is overridden in tests
	now func() time.Time
}

// OIDCProvider signs users in with ID tokens issued by an external OpenID
// Connect provider, such as a university single sign-on service.
type OIDCProvider struct {
	Emitter

	verifier *oidc.IDTokenVerifier
	token    *tokenStore
	logger   *log.Logger
}

// idTokenClaims are the profile claims read from an ID token.
type idTokenClaims struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// NewOIDCProvider builds the verifier and restores a saved, still-valid ID token.
func NewOIDCProvider(ctx context.Context, cfg OIDCConfig) (*OIDCProvider, error) {
	if cfg.Issuer == "" || cfg.ClientID == "" {
		return nil, errors.NewConfigInvalidError("identity.oidc", "issuer and client_id are required")
	}

	oidcCfg := &oidc.Config{ClientID: cfg.ClientID}
	if cfg.now != nil {
		oidcCfg.Now = cfg.now
	}

	var verifier *oidc.IDTokenVerifier
	switch {
	case cfg.KeySet != nil:
		verifier = oidc.NewVerifier(cfg.Issuer, cfg.KeySet, oidcCfg)
	case cfg.JWKSURL != "":
		verifier = oidc.NewVerifier(cfg.Issuer, oidc.NewRemoteKeySet(ctx, cfg.JWKSURL), oidcCfg)
	default:
		provider, err := oidc.NewProvider(ctx, cfg.Issuer)
		if err != nil {
			return nil, errors.NewTransportError(errors.ErrCodeIdentityUnavailable, "OIDC discovery", err)
		}
		verifier = provider.Verifier(oidcCfg)
	}

	p := &OIDCProvider{
		verifier: verifier,
		token:    newTokenStore(cfg.TokenPath),
		logger:   log.Or(cfg.Logger).With("component", "identity", "provider", "oidc", "issuer", cfg.Issuer),
	}

	if raw, ok := p.token.load(); ok {
		cred, err := p.verify(ctx, raw)
		if err != nil {
			p.logger.WithError(err).Info("discarding saved ID token")
			_ = p.token.clear()
		} else {
			p.current = cred
		}
	}

	return p, nil
}

// Verify checks an ID token against the issuer's keys.
func (p *OIDCProvider) Verify(ctx context.Context, raw string) (*Credential, error) {
	return p.verify(ctx, raw)
}

// Token returns the current ID token, or "" when signed out.
func (p *OIDCProvider) Token() string {
	return p.token.current()
}

func (p *OIDCProvider) verify(ctx context.Context, raw string) (*Credential, error) {
	idToken, err := p.verifier.Verify(ctx, raw)
	if err != nil {
		var expired *oidc.TokenExpiredError
		if stderrors.As(err, &expired) {
			return nil, errors.Wrap(errors.ErrCodeIdentityTokenExpired, "ID token has expired", err).
				WithKind(errors.KindAuth)
		}
		return nil, errors.Wrap(errors.ErrCodeIdentityTokenInvalid, "ID token rejected", err).
			WithKind(errors.KindAuth)
	}

	var claims idTokenClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, errors.Wrap(errors.ErrCodeIdentityTokenInvalid, "failed to read ID token claims", err).
			WithKind(errors.KindAuth)
	}
	return &Credential{
		UserID:      idToken.Subject,
		Email:       strings.ToLower(claims.Email),
		DisplayName: claims.Name,
	}, nil
}

// SignIn verifies rawIDToken, saves it and makes its subject the current user.
func (p *OIDCProvider) SignIn(ctx context.Context, rawIDToken string) (*Credential, error) {
	rawIDToken = strings.TrimSpace(rawIDToken)
	if rawIDToken == "" {
		return nil, errors.NewFieldRequiredError("ID token")
	}
	cred, err := p.verify(ctx, rawIDToken)
	if err != nil {
		return nil, err
	}
	if err := p.token.save(rawIDToken); err != nil {
		return nil, err
	}
	p.logger.InfoContext(ctx, "signed in", "user_id", cred.UserID)
	p.Emit(cred)
	return cred.Clone(), nil
}

// Invalidate forgets the saved ID token and emits a nil credential.
func (p *OIDCProvider) Invalidate(ctx context.Context) error {
	err := p.token.clear()
	if err != nil {
		p.logger.LogErrorContext(ctx, "failed to remove ID token", err)
	}
	p.Emit(nil)
	return err
}
