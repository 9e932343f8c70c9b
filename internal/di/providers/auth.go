package providers

import (
	"github.com/samber/do/v2"

	"github.com/booknestapp/booknest-server/internal/auth"
	"github.com/booknestapp/booknest-server/internal/config"
	"github.com/booknestapp/booknest-server/internal/logger"
	"github.com/booknestapp/booknest-server/internal/validation"
)

// AuthKey is the PASETO symmetric key, typed so the container can tell it
// apart from other byte slices.
type AuthKey []byte

// ProvideAuthKey loads or generates the token key.
func ProvideAuthKey(i do.Injector) (AuthKey, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	key, err := auth.LoadOrGenerateKey(cfg.Auth.TokenKeyPath)
	if err != nil {
		return nil, err
	}
	log.Info("Auth key loaded", "path", cfg.Auth.TokenKeyPath)
	return AuthKey(key), nil
}

// ProvideTokenService provides the access token issuer.
func ProvideTokenService(i do.Injector) (*auth.TokenService, error) {
	cfg := do.MustInvoke[*config.Config](i)
	key := do.MustInvoke[AuthKey](i)

	return auth.NewTokenService(key, cfg.Auth.AccessTokenDuration)
}

// ProvideValidator provides the request validator.
func ProvideValidator(i do.Injector) (*validation.Validator, error) {
	return validation.New(), nil
}

// ProvideAuthService provides the account and session service.
func ProvideAuthService(i do.Injector) (*auth.Service, error) {
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	tokens := do.MustInvoke[*auth.TokenService](i)
	v := do.MustInvoke[*validation.Validator](i)

	return auth.NewService(storeHandle.Store, tokens, v, auth.ServiceOptions{
		Logger: log.Component("auth"),
	}), nil
}
