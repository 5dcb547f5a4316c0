package fulfillment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/angelmondragon/giftflow-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/giftflow-backend/pkg/errors"
	"github.com/angelmondragon/giftflow-backend/pkg/types"
	"github.com/angelmondragon/giftflow-backend/pkg/zinc"
)

// Credentials is everything needed to place an order on behalf of the business account.
type Credentials struct {
	AccountEmail   string
	ClientToken    string
	Retailer       zinc.RetailerCredentials
	PaymentMethod  zinc.PaymentMethod
	BillingAddress *types.ShippingAddress
	// Degraded is set when no usable card was found and only the cardholder name is sent.
	Degraded       bool
	DegradedReason string
}

// CredentialResolver loads the marketplace account and payment method for a retailer.
type CredentialResolver interface {
	Resolve(ctx context.Context, retailer string) (*Credentials, error)
}

type opener interface {
	Open(sealed string) ([]byte, error)
}

// CredentialStore reads the sealed marketplace rows.
type CredentialStore interface {
	ActiveAccount(ctx context.Context, retailer string) (*models.MarketplaceAccount, error)
	DefaultPaymentMethod(ctx context.Context) (*models.BusinessPaymentMethod, error)
}

type credentialStore struct {
	db *gorm.DB
}

// NewCredentialStore wires the marketplace credential tables.
func NewCredentialStore(db *gorm.DB) CredentialStore {
	return &credentialStore{db: db}
}

func (s *credentialStore) ActiveAccount(ctx context.Context, retailer string) (*models.MarketplaceAccount, error) {
	var account models.MarketplaceAccount
	err := s.db.WithContext(ctx).
		Where("retailer = ? AND is_active = ?", retailer, true).
		Order("updated_at DESC").
		First(&account).Error
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (s *credentialStore) DefaultPaymentMethod(ctx context.Context) (*models.BusinessPaymentMethod, error) {
	var method models.BusinessPaymentMethod
	err := s.db.WithContext(ctx).
		Where("is_default = ?", true).
		Order("updated_at DESC").
		First(&method).Error
	if err != nil {
		return nil, err
	}
	return &method, nil
}

// sealedRetailerSecrets is the plaintext layout of marketplace_accounts.sealed_retailer_secrets.
type sealedRetailerSecrets struct {
	Password   string `json:"password"`
	TOTP2FAKey string `json:"totp_2fa_key,omitempty"`
}

// sealedCard is the plaintext layout of business_payment_methods.sealed_card.
type sealedCard struct {
	Number       string `json:"number"`
	SecurityCode string `json:"security_code"`
}

type credentialResolver struct {
	store             CredentialStore
	sealer            opener
	defaultCardholder string
}

// NewCredentialResolver builds a resolver that unseals stored credentials.
func NewCredentialResolver(store CredentialStore, sealer opener, defaultCardholder string) CredentialResolver {
	return &credentialResolver{store: store, sealer: sealer, defaultCardholder: defaultCardholder}
}

// Resolve fails when the account cannot be used. A missing or unreadable card degrades
// to a cardholder-name-only payment method instead.
func (r *credentialResolver) Resolve(ctx context.Context, retailer string) (*Credentials, error) {
	account, err := r.store.ActiveAccount(ctx, retailer)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("no active %s marketplace account", retailer))
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load marketplace account")
	}

	token, err := r.sealer.Open(account.SealedClientToken)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "open marketplace client token")
	}
	rawSecrets, err := r.sealer.Open(account.SealedRetailerSecrets)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "open retailer credentials")
	}
	var secrets sealedRetailerSecrets
	if err := json.Unmarshal(rawSecrets, &secrets); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode retailer credentials")
	}

	clientToken := strings.TrimSpace(string(token))
	if clientToken == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "marketplace client token is empty")
	}

	creds := &Credentials{
		AccountEmail: account.AccountEmail,
		ClientToken:  clientToken,
		Retailer: zinc.RetailerCredentials{
			Email:      account.AccountEmail,
			Password:   secrets.Password,
			TOTP2FAKey: secrets.TOTP2FAKey,
		},
	}

	method, err := r.store.DefaultPaymentMethod(ctx)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		r.degrade(creds, "", "no default payment method")
		return creds, nil
	case err != nil:
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment method")
	}

	creds.BillingAddress = method.BillingAddress
	rawCard, err := r.sealer.Open(method.SealedCard)
	if err != nil {
		r.degrade(creds, method.CardholderName, "stored card could not be opened")
		return creds, nil
	}
	var card sealedCard
	if err := json.Unmarshal(rawCard, &card); err != nil {
		r.degrade(creds, method.CardholderName, "stored card is malformed")
		return creds, nil
	}
	creds.PaymentMethod = zinc.PaymentMethod{
		NameOnCard:      method.CardholderName,
		Number:          card.Number,
		SecurityCode:    card.SecurityCode,
		ExpirationMonth: method.ExpMonth,
		ExpirationYear:  method.ExpYear,
	}
	if !creds.PaymentMethod.HasCard() {
		r.degrade(creds, method.CardholderName, "stored card is incomplete")
	}
	return creds, nil
}

func (r *credentialResolver) degrade(creds *Credentials, cardholder, reason string) {
	if strings.TrimSpace(cardholder) == "" {
		cardholder = r.defaultCardholder
	}
	creds.PaymentMethod = zinc.PaymentMethod{NameOnCard: cardholder}
	creds.Degraded = true
	creds.DegradedReason = reason
}
