package types

import (
	"encoding/base64"
	"net/mail"
	"net/url"

	"github.com/google/uuid"
)

func castString(format string, raw any) (any, error) {
	s, ok := rawString(raw)
	if !ok {
		return fail(String, format, raw, "not a string")
	}

	switch format {
	case "email":
		addr, err := mail.ParseAddress(s)
		if err != nil || addr.Address != s {
			return fail(String, format, raw, "not an email address")
		}
	case "uri":
		u, err := url.Parse(s)
		if err != nil || u.Scheme == "" {
			return fail(String, format, raw, "not an absolute URI")
		}
	case "binary":
		if _, err := base64.StdEncoding.DecodeString(s); err != nil {
			return fail(String, format, raw, "not base64")
		}
	case "uuid":
		if _, err := uuid.Parse(s); err != nil {
			return fail(String, format, raw, "not a UUID")
		}
	}
	return s, nil
}
