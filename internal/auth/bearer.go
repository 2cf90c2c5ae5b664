package auth

import "strings"

// ParseBearer extracts the token from an Authorization header value. The
// scheme match is case-insensitive.
func ParseBearer(header string) (string, error) {
	value := strings.TrimSpace(header)
	if value == "" {
		return "", ErrMissingToken
	}

	parts := strings.SplitN(value, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", ErrMissingToken
	}

	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", ErrMissingToken
	}
	return token, nil
}
