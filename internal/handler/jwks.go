package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/auth-service/internal/utils"
)

// KeySet exposes the public verification key.  *utils.Signer implements it.
type KeySet interface {
	PublicJWKS() (utils.JWKS, error)
}

// JWKS serves the access-token verification key so other services can
// check tokens without sharing secrets.
func JWKS(keys KeySet) echo.HandlerFunc {
	return func(c echo.Context) error {
		set, err := keys.PublicJWKS()
		if err != nil {
			if errors.Is(err, utils.ErrKeyUnavailable) {
				return KeyUnavailableError(err)
			}
			return err
		}
		c.Response().Header().Set("Cache-Control", "public, max-age=300")
		return c.JSON(http.StatusOK, set)
	}
}
