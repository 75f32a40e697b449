package session

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// IntentClaim is the requested claim that names the consent being authorised
const IntentClaim = "openbanking_intent_id"

var claimMembers = []string{"userinfo", "id_token"}

// ConsentIDFromRequestObject reads the consent id from the claims member of
// a request object JWT. The signature is not verified here.
func ConsentIDFromRequestObject(requestObject string) (string, error) {
	token, _, err := jwt.NewParser().ParseUnverified(requestObject, jwt.MapClaims{})
	if err != nil {
		return "", fmt.Errorf("failed to parse request object: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("invalid request object claims")
	}

	requested, _ := claims["claims"].(map[string]interface{})
	for _, member := range claimMembers {
		claimObject, ok := requested[member].(map[string]interface{})
		if !ok {
			continue
		}
		intent, ok := claimObject[IntentClaim].(map[string]interface{})
		if !ok {
			continue
		}
		if value, ok := intent["value"].(string); ok && value != "" {
			return value, nil
		}
	}
	return "", fmt.Errorf("request object does not request %s", IntentClaim)
}
