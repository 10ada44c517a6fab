package esignet

import (
	"errors"

	"github.com/vlinder/social-grant/pkg/assertion"
	grantErrors "github.com/vlinder/social-grant/pkg/errors"
	"github.com/vlinder/social-grant/pkg/userinfo"
)

// ToCoded converts a client, signer or decoder failure into the coded form used at the HTTP edge
func ToCoded(err error) *grantErrors.Error {
	if err == nil {
		return nil
	}

	var upstream *UpstreamError
	var decode *userinfo.DecodeError
	var keyImport *assertion.KeyImportError
	var signing *assertion.SigningError

	switch {
	case errors.As(err, &upstream):
		coded := grantErrors.Wrap(err, grantErrors.ErrCodeUpstream, "eSignet request failed").
			WithDetail("endpoint", upstream.Endpoint).
			WithDetail("statusCode", upstream.StatusCode)
		if code := upstream.ErrorCode(); code != "" {
			coded.WithDetail("upstreamCode", code)
		}
		return coded
	case errors.As(err, &decode):
		return grantErrors.Wrap(err, grantErrors.ErrCodeDecode, "Failed to decode user info")
	case errors.As(err, &keyImport):
		return grantErrors.Wrap(err, grantErrors.ErrCodeKeyImport, "Client key could not be loaded")
	case errors.As(err, &signing):
		return grantErrors.Wrap(err, grantErrors.ErrCodeSigning, "Client assertion could not be signed")
	}

	var coded *grantErrors.Error
	if errors.As(err, &coded) {
		return coded
	}
	return grantErrors.InternalWrap(err, "internal error")
}
