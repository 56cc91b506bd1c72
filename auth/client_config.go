package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jrsteele09/go-auth-client/internal/config"
	"github.com/jrsteele09/go-auth-client/internal/errors"
)

// ClientConfig is this application's registration at the authorization server.
// It is built once at startup and never changes afterwards.
type ClientConfig struct {
	ServerURL    string        `validate:"required,url"`
	ClientID     string        `validate:"required"`
	ClientSecret string        `validate:"required"`
	RedirectURI  string        `validate:"required,url"`
	FrontendURL  string        `validate:"required,url"`
	Scopes       []string      `validate:"min=1,dive,required"`
	HTTPTimeout  time.Duration `validate:"gt=0"`
	Discovery    bool
}

// NewClientConfig reads the OAuth settings and validates them.
func NewClientConfig(c config.OAuthConfig) (ClientConfig, error) {
	cc := ClientConfig{
		ServerURL:    c.GetServerURL(),
		ClientID:     c.GetClientID(),
		ClientSecret: c.GetClientSecret(),
		RedirectURI:  c.GetRedirectURI(),
		FrontendURL:  c.GetFrontendURL(),
		Scopes:       c.GetScopes(),
		HTTPTimeout:  c.GetHTTPTimeout(),
		Discovery:    c.GetIssuerDiscovery(),
	}
	if err := cc.Validate(); err != nil {
		return ClientConfig{}, err
	}
	return cc, nil
}

func (c ClientConfig) Validate() error {
	err := validator.New().Struct(c)
	if err == nil {
		return nil
	}
	validationErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return errors.Wrapf(errors.ErrInvalidConfig, "%v", err)
	}
	fields := make([]string, 0, len(validationErrs))
	for _, fe := range validationErrs {
		fields = append(fields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
	}
	return errors.Wrapf(errors.ErrInvalidConfig, "oauth client: %s", strings.Join(fields, ", "))
}
