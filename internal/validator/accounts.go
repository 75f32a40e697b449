package validator

import (
	"fmt"
	"net/http"
	"regexp"

	"github.com/wso2/ob-consent-engine/internal/models"
	"github.com/wso2/ob-consent-engine/internal/serviceerror"
)

// Account access permissions a receipt may carry
const (
	PermissionReadAccountsBasic      = "ReadAccountsBasic"
	PermissionReadAccountsDetail     = "ReadAccountsDetail"
	PermissionReadBalances           = "ReadBalances"
	PermissionReadTransactionsDetail = "ReadTransactionsDetail"
)

var allowedPermissions = map[string]struct{}{
	PermissionReadAccountsBasic:      {},
	PermissionReadAccountsDetail:     {},
	PermissionReadBalances:           {},
	PermissionReadTransactionsDetail: {},
}

type accountRoute struct {
	pattern    *regexp.Regexp
	permission string
}

// Order matters: the bare account route is the most general.
var accountRoutes = []accountRoute{
	{regexp.MustCompile(`^/accounts/([^/?]+)/transactions/?$`), PermissionReadTransactionsDetail},
	{regexp.MustCompile(`^/accounts/([^/?]+)/balances/?$`), PermissionReadBalances},
	{regexp.MustCompile(`^/accounts/([^/?]+)/?$`), PermissionReadAccountsDetail},
}

func (v *CrossValidator) validateAccounts(consent *models.DetailedConsentResource, receipt Document, sub Submission) (Result, error) {
	var data AccountsData
	if err := receipt.Data.Decode(&data); err != nil {
		return Result{}, fmt.Errorf("stored receipt of consent %s has a malformed Data section: %w", consent.ConsentID, err)
	}

	permissions, ok := data.Permissions.Strings()
	if !ok {
		return Result{}, fmt.Errorf("stored receipt of consent %s has no Permissions list", consent.ConsentID)
	}
	if r := checkPermissions(permissions); !r.Valid {
		return r, nil
	}

	expired, r := v.expired(data.ExpirationDateTime)
	if !r.Valid {
		return r, nil
	}
	if expired {
		return Invalid("Consent has expired").WithStatus(http.StatusUnauthorized), nil
	}

	accountID, required, r := matchAccountRoute(sub.ResourcePath)
	if !r.Valid {
		return r, nil
	}
	if !contains(permissions, required) {
		return Mismatch(fmt.Sprintf("Consent does not grant %s for %s", required, sub.ResourcePath)).
			WithStatus(http.StatusUnauthorized), nil
	}

	mappings := consent.ActiveMappings()
	if len(mappings) > 0 {
		found := false
		for _, m := range mappings {
			if m.AccountID == accountID {
				found = true
				break
			}
		}
		if !found {
			return Mismatch(fmt.Sprintf("Account %s is not authorised by the consent", accountID)).
				WithStatus(http.StatusUnauthorized), nil
		}
	}

	return OK(), nil
}

// matchAccountRoute returns the account id of the path and the permission it needs
func matchAccountRoute(path string) (string, string, Result) {
	if path == "" {
		return "", "", Missing("Resource path is missing in the request")
	}
	for _, route := range accountRoutes {
		if m := route.pattern.FindStringSubmatch(path); m != nil {
			return m[1], route.permission, OK()
		}
	}
	return "", "", Invalid(fmt.Sprintf("Resource path %s is not supported", path)).
		WithCode(serviceerror.InvalidFormat).
		WithStatus(http.StatusUnauthorized)
}

func checkPermissions(permissions []string) Result {
	if len(permissions) == 0 {
		return Invalid("Permissions must not be empty")
	}
	for _, p := range permissions {
		if _, ok := allowedPermissions[p]; !ok {
			return Invalid(fmt.Sprintf("Permission %s is not supported", p))
		}
	}
	return OK()
}

func contains(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
