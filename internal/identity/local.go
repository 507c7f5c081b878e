package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/felixgeelhaar/campusconnect/internal/errors"
	"github.com/felixgeelhaar/campusconnect/internal/log"
)

// LocalConfig configures a LocalProvider. Empty paths keep that piece in memory.
type LocalConfig struct {
	AccountsPath   string
	TokenPath      string
	SigningKeyPath string
	Issuer         string
	TokenTTL       time.Duration
	Logger         *log.Logger

	// now is overridden in tests
	now func() time.Time
}

// account is a stored email/password identity.
type account struct {
	UserID       string    `json:"user_id"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"display_name"`
	PasswordHash string    `json:"password_hash"`
	CreatedAt    time.Time `json:"created_at"`
}

// sessionClaims are the claims of a local session token.
type sessionClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// LocalProvider is an email/password identity provider backed by files in the
// CampusConnect home directory. Sessions are HS256 JWTs.
type LocalProvider struct {
	Emitter

	cfg        LocalConfig
	logger     *log.Logger
	signingKey []byte
	token      *tokenStore

	mu       sync.Mutex
	accounts map[string]*account
}

// NewLocalProvider loads accounts and any saved session. A valid saved session
// becomes the current credential.
func NewLocalProvider(cfg LocalConfig) (*LocalProvider, error) {
	if cfg.Issuer == "" {
		cfg.Issuer = "campusconnect"
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 30 * 24 * time.Hour
	}
	if cfg.now == nil {
		cfg.now = time.Now
	}

	p := &LocalProvider{
		cfg:      cfg,
		logger:   log.Or(cfg.Logger).With("component", "identity", "provider", "local"),
		token:    newTokenStore(cfg.TokenPath),
		accounts: make(map[string]*account),
	}

	key, err := loadOrCreateKey(cfg.SigningKeyPath)
	if err != nil {
		return nil, err
	}
	p.signingKey = key

	if err := p.loadAccounts(); err != nil {
		return nil, err
	}

	if raw, ok := p.token.load(); ok {
		cred, err := p.verify(raw)
		if err != nil {
			p.logger.WithError(err).Info("discarding saved session")
			_ = p.token.clear()
		} else {
			p.current = cred
		}
	}

	return p, nil
}

func loadOrCreateKey(path string) ([]byte, error) {
	if path != "" {
		if data, err := os.ReadFile(path); err == nil {
			key, err := hex.DecodeString(strings.TrimSpace(string(data)))
			if err == nil && len(key) >= 32 {
				return key, nil
			}
		}
	}

	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, errors.Wrap(errors.ErrCodeIdentityUnavailable, "failed to generate signing key", err)
	}
	if path == "" {
		return key, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, errors.Wrap(errors.ErrCodeDirectoryFailed, "failed to create identity directory", err)
	}
	if err := os.WriteFile(path, []byte(hex.EncodeToString(key)), 0o600); err != nil {
		return nil, errors.Wrap(errors.ErrCodeFileWriteFailed, "failed to save signing key", err)
	}
	return key, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (p *LocalProvider) loadAccounts() error {
	if p.cfg.AccountsPath == "" {
		return nil
	}
	data, err := os.ReadFile(p.cfg.AccountsPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.Wrap(errors.ErrCodeFileReadFailed, "failed to read accounts", err)
	}
	var list []*account
	if err := json.Unmarshal(data, &list); err != nil {
		return errors.NewFileUnmarshalError(p.cfg.AccountsPath, "JSON", err)
	}
	for _, a := range list {
		p.accounts[a.Email] = a
	}
	return nil
}

func (p *LocalProvider) saveAccountsLocked() error {
	if p.cfg.AccountsPath == "" {
		return nil
	}
	list := make([]*account, 0, len(p.accounts))
	for _, a := range p.accounts {
		list = append(list, a)
	}
	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return errors.Wrap(errors.ErrCodeFileMarshal, "failed to encode accounts", err)
	}
	if err := os.MkdirAll(filepath.Dir(p.cfg.AccountsPath), 0o700); err != nil {
		return errors.Wrap(errors.ErrCodeDirectoryFailed, "failed to create identity directory", err)
	}
	if err := os.WriteFile(p.cfg.AccountsPath, data, 0o600); err != nil {
		return errors.Wrap(errors.ErrCodeFileWriteFailed, "failed to save accounts", err)
	}
	return nil
}

// SignUp creates an account and signs it in.
func (p *LocalProvider) SignUp(ctx context.Context, email, password, displayName string) (*Credential, error) {
	email = normalizeEmail(email)
	displayName = strings.TrimSpace(displayName)
	switch {
	case displayName == "":
		return nil, errors.NewFieldRequiredError("full name")
	case email == "":
		return nil, errors.NewFieldRequiredError("email")
	case password == "":
		return nil, errors.NewFieldRequiredError("password")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeIdentityUnavailable, "failed to hash password", err)
	}

	p.mu.Lock()
	if _, exists := p.accounts[email]; exists {
		p.mu.Unlock()
		return nil, errors.New(errors.ErrCodeIdentityAccountExists, "an account already exists for "+email).
			WithKind(errors.KindInvalid).
			WithSuggestion("Run 'campusconnect login' instead")
	}
	acct := &account{
		UserID:       uuid.NewString(),
		Email:        email,
		DisplayName:  displayName,
		PasswordHash: string(hash),
		CreatedAt:    p.cfg.now().UTC(),
	}
	p.accounts[email] = acct
	if err := p.saveAccountsLocked(); err != nil {
		delete(p.accounts, email)
		p.mu.Unlock()
		return nil, err
	}
	p.mu.Unlock()

	p.logger.InfoContext(ctx, "account created", "user_id", acct.UserID)
	return p.startSession(acct)
}

// SignIn checks the password and signs the account in.
func (p *LocalProvider) SignIn(ctx context.Context, email, password string) (*Credential, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, errors.NewFieldRequiredError("email")
	}
	if password == "" {
		return nil, errors.NewFieldRequiredError("password")
	}

	p.mu.Lock()
	acct, ok := p.accounts[email]
	p.mu.Unlock()
	if !ok {
		return nil, errors.NewInvalidCredentialsError()
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(password)); err != nil {
		p.logger.DebugContext(ctx, "password mismatch", "user_id", acct.UserID)
		return nil, errors.NewInvalidCredentialsError()
	}

	return p.startSession(acct)
}

func (p *LocalProvider) startSession(acct *account) (*Credential, error) {
	raw, err := p.issue(acct)
	if err != nil {
		return nil, err
	}
	if err := p.token.save(raw); err != nil {
		return nil, err
	}
	cred := &Credential{UserID: acct.UserID, Email: acct.Email, DisplayName: acct.DisplayName}
	p.Emit(cred)
	return cred.Clone(), nil
}

func (p *LocalProvider) issue(acct *account) (string, error) {
	now := p.cfg.now()
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    p.cfg.Issuer,
			Subject:   acct.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(p.cfg.TokenTTL)),
			ID:        uuid.NewString(),
		},
		Email: acct.Email,
		Name:  acct.DisplayName,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.signingKey)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeIdentityUnavailable, "failed to sign session token", err)
	}
	return signed, nil
}

// Verify checks a session token issued by this provider.
func (p *LocalProvider) Verify(_ context.Context, raw string) (*Credential, error) {
	return p.verify(raw)
}

// Token returns the current session token, or "" when signed out.
func (p *LocalProvider) Token() string {
	return p.token.current()
}

func (p *LocalProvider) verify(raw string) (*Credential, error) {
	var claims sessionClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (interface{}, error) {
		return p.signingKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(p.cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(p.cfg.now),
	)
	if err != nil {
		if stderrors.Is(err, jwt.ErrTokenExpired) {
			return nil, errors.Wrap(errors.ErrCodeIdentityTokenExpired, "session has expired", err).
				WithKind(errors.KindAuth).
				WithSuggestion("Run 'campusconnect login' to sign in again")
		}
		return nil, errors.Wrap(errors.ErrCodeIdentityTokenInvalid, "invalid session token", err).
			WithKind(errors.KindAuth)
	}
	if claims.Subject == "" {
		return nil, errors.New(errors.ErrCodeIdentityTokenInvalid, "session token has no subject").
			WithKind(errors.KindAuth)
	}
	return &Credential{UserID: claims.Subject, Email: claims.Email, DisplayName: claims.Name}, nil
}

// Invalidate removes the saved session and emits a nil credential. The nil
// event is emitted even when removing the token file fails.
func (p *LocalProvider) Invalidate(ctx context.Context) error {
	err := p.token.clear()
	if err != nil {
		p.logger.LogErrorContext(ctx, "failed to remove session token", err)
	}
	p.Emit(nil)
	return err
}
